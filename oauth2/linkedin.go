package oauth2

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"
)

// LinkedInOAuth2 signs users in through LinkedIn's OpenID Connect product.
type LinkedInOAuth2 struct {
	*BaseOAuth2
}

func NewLinkedInOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *LinkedInOAuth2 {
	out := &LinkedInOAuth2{
		BaseOAuth2: NewBaseOAuth2("linkedin", clientId, clientSecret, callbackUrl, handleUser),
	}
	out.UserInfoURL = "https://api.linkedin.com/v2/userinfo"
	out.oauthConfig.Endpoint = linkedin.Endpoint
	out.oauthConfig.Scopes = []string{"openid", "profile", "email"}
	out.fetchProfile = out.getUserData
	return out
}

func (l *LinkedInOAuth2) getUserData(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	var userInfo map[string]any
	if err := l.getJSON(ctx, token, l.UserInfoURL, &userInfo); err != nil {
		return nil, err
	}
	profile := &Profile{
		ID:    stringField(userInfo, "sub"),
		Email: stringField(userInfo, "email"),
		Name:  stringField(userInfo, "name"),
		Raw:   userInfo,
	}
	if profile.Name == "" {
		profile.Name = strings.TrimSpace(stringField(userInfo, "given_name") + " " + stringField(userInfo, "family_name"))
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("linkedin profile has no subject")
	}
	return profile, nil
}
