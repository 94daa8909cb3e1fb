package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/FranLegon/drive-doc-relay/internal/api"
	"github.com/FranLegon/drive-doc-relay/internal/config"
	"github.com/FranLegon/drive-doc-relay/internal/dispatch"
	"github.com/FranLegon/drive-doc-relay/internal/folder"
	"github.com/FranLegon/drive-doc-relay/internal/google"
	"github.com/FranLegon/drive-doc-relay/internal/memory"
	"github.com/FranLegon/drive-doc-relay/internal/microsoft"
	"github.com/FranLegon/drive-doc-relay/internal/model"
	"github.com/FranLegon/drive-doc-relay/internal/task"
	"github.com/manifoldco/promptui"
)

// newFactory returns the document service factory for the configured provider
func newFactory(cfg *config.Config) (api.Factory, error) {
	switch cfg.Provider {
	case model.ProviderGoogle:
		return google.NewFactory(google.Options{Endpoint: cfg.Google.Endpoint}), nil
	case model.ProviderMicrosoft:
		return microsoft.NewFactory(microsoft.Options{Scopes: cfg.Microsoft.Scopes}), nil
	case model.ProviderMemory:
		return memory.NewAccounts().Factory(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func newRunner(cfg *config.Config) *task.Runner {
	return task.NewRunner(
		folder.NewResolver(cfg.Folders.Root, cfg.Folders.Defaults),
		dispatch.NewDispatcher(cfg.Merge.Suffix),
	)
}

// serviceForToken builds a document service for token, prompting for it when empty
func serviceForToken(ctx context.Context, cfg *config.Config, token string) (api.DocumentService, error) {
	if token == "" {
		var err error
		if token, err = promptForToken(); err != nil {
			return nil, err
		}
	}

	factory, err := newFactory(cfg)
	if err != nil {
		return nil, err
	}
	return factory(ctx, token)
}

// promptForToken reads an access token without echoing it to the terminal
func promptForToken() (string, error) {
	prompt := promptui.Prompt{
		Label: "Access Token",
		Mask:  '*',
		Validate: func(input string) error {
			if input == "" {
				return errors.New("token must not be empty")
			}
			return nil
		},
	}
	return prompt.Run()
}
