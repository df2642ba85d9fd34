// Package authservice is an account and session service for a mentoring
// platform. It covers local email and password accounts, sign in through
// Google, GitHub and LinkedIn, short lived emailed codes for email
// verification and password reset, and JWT session cookies.
//
// # Accounts
//
// An Account is keyed by its normalized email. Local accounts carry a
// bcrypt password hash; federated accounts carry a random placeholder hash
// that no password can match. Every account has one Role, mentee or mentor.
//
// # Sessions
//
// A successful sign in issues an access token (30 minutes) and a refresh
// token (7 days), set as the httpOnly cookies "accessToken" and
// "refreshToken". Both are HS256 JWTs signed with separate secrets. Sign out
// only clears the cookies; tokens stay valid until they expire.
//
// # Codes
//
// Verification and password reset codes are six digits, stored only as an
// HMAC-SHA256 digest, and valid for five minutes. A code is usable once. An
// expired code is cleared when it is presented.
//
// # Basic Usage
//
//	cfg, _ := config.Load()
//	svc, err := authservice.New(cfg, authservice.Dependencies{
//	    Accounts: fs.NewFSAccountStore("./data"),
//	    Posts:    fs.NewFSPostStore("./data"),
//	    Notifier: notifier,
//	    Logger:   logger,
//	})
//	http.ListenAndServe(cfg.Addr(), svc.Handler())
//
// # Stores
//
// AccountStore and PostStore have file, gorm (sqlite), MongoDB and Cloud
// Datastore implementations under stores/.
package authservice
