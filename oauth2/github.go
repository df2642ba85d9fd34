package oauth2

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

type GithubOAuth2 struct {
	*BaseOAuth2

	// EmailsURL lists the user's addresses. It is consulted when the public
	// profile hides the email.
	EmailsURL string
}

func NewGithubOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *GithubOAuth2 {
	out := &GithubOAuth2{
		BaseOAuth2: NewBaseOAuth2("github", clientId, clientSecret, callbackUrl, handleUser),
		EmailsURL:  "https://api.github.com/user/emails",
	}
	out.UserInfoURL = "https://api.github.com/user"
	out.oauthConfig.Endpoint = github.Endpoint
	out.oauthConfig.Scopes = []string{
		"read:user", "user:email",
	}
	out.fetchProfile = out.getUserData
	return out
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GithubOAuth2) getUserData(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	var userInfo map[string]any
	if err := g.getJSON(ctx, token, g.UserInfoURL, &userInfo); err != nil {
		return nil, err
	}

	profile := &Profile{
		ID:    stringField(userInfo, "id"),
		Email: stringField(userInfo, "email"),
		Name:  stringField(userInfo, "name"),
		Raw:   userInfo,
	}
	if profile.Name == "" {
		profile.Name = stringField(userInfo, "login")
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("github profile has no id")
	}

	if profile.Email == "" && g.EmailsURL != "" {
		email, err := g.primaryEmail(ctx, token)
		if err != nil {
			g.Logger.Info("could not list github emails", zap.Error(err))
		}
		profile.Email = email
	}
	return profile, nil
}

// primaryEmail picks the primary verified address, falling back to any
// verified one.
func (g *GithubOAuth2) primaryEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	var emails []githubEmail
	if err := g.getJSON(ctx, token, g.EmailsURL, &emails); err != nil {
		return "", err
	}
	fallback := ""
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email, nil
		}
		if fallback == "" {
			fallback = e.Email
		}
	}
	return fallback, nil
}
