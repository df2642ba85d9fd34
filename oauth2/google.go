package oauth2

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type GoogleOAuth2 struct {
	*BaseOAuth2
}

func NewGoogleOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *GoogleOAuth2 {
	out := &GoogleOAuth2{
		BaseOAuth2: NewBaseOAuth2("google", clientId, clientSecret, callbackUrl, handleUser),
	}
	out.UserInfoURL = googleUserInfoURL
	out.oauthConfig.Endpoint = google.Endpoint
	out.oauthConfig.Scopes = []string{
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	}
	out.fetchProfile = out.getUserData
	return out
}

func (g *GoogleOAuth2) getUserData(ctx context.Context, token *oauth2.Token) (*Profile, error) {
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
	if profile.ID == "" {
		return nil, fmt.Errorf("google profile has no id")
	}
	return profile, nil
}
