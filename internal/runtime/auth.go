package runtime

import (
	"context"
	"log/slog"
	"os"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"

	gc "github.com/sortedmail/sift/internal/gmail"
)

// NewGmailClient authenticates against Gmail with credentials stored in
// cfgDir. localcred builds the service from the stored token, whose scopes
// were fixed when the token was first granted; both fetch and apply share
// the same credential directory.
func NewGmailClient(ctx context.Context, cfgDir string) (gc.Client, error) {
	svc, err := (localcred.Provider{}).Service(ctx, cfgDir)
	if err != nil {
		return nil, err
	}
	return NewGoogleAPIClient(svc), nil
}

func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
