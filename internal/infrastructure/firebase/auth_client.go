package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"
)

type FirebaseAuthClient struct {
	client *auth.Client
	apiKey string
}

func NewFirebaseAuthClient(client *auth.Client, apiKey string) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
		apiKey: apiKey,
	}
}

// CreateUser provisions an auth account pinned to the given uid, so tokens
// minted for that uid verify against a real account. Creating a uid that
// already exists is not an error.
func (f *FirebaseAuthClient) CreateUser(ctx context.Context, uid, email, displayName string) (string, error) {
	params := (&auth.UserToCreate{}).UID(uid)
	if email != "" {
		params = params.Email(email)
	}
	if displayName != "" {
		params = params.DisplayName(displayName)
	}

	user, err := f.client.CreateUser(ctx, params)
	if err != nil {
		if auth.IsUIDAlreadyExists(err) {
			return uid, nil
		}
		return "", err
	}

	return user.UID, nil
}

func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (string, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", err
	}

	return result.UID, nil
}

func (f *FirebaseAuthClient) GenerateToken(ctx context.Context, uid string) (string, error) {
	token, err := f.client.CustomToken(ctx, uid)
	if err != nil {
		return "", err
	}

	return token, nil
}
