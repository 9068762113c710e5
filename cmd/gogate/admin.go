package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/password"
	"github.com/spf13/cobra"
)

// withEngine runs fn against an engine built from the loaded settings and
// tears everything down afterwards.
func (a *app) withEngine(ctx context.Context, fn func(*goGate.Engine) error) error {
	b, err := openBackend(ctx, a.settings, a.log)
	if err != nil {
		return err
	}
	defer b.Close()

	engine, err := buildEngine(a.settings, b, a.log)
	if err != nil {
		return err
	}
	defer engine.Close()
	return fn(engine)
}

// readSecret reads the whole of r, dropping one trailing newline.
func readSecret(r io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "", err
	}
	secret := strings.TrimSuffix(strings.TrimSuffix(string(raw), "\n"), "\r")
	if secret == "" {
		return "", errors.New("secret on stdin is empty")
	}
	return secret, nil
}

func (a *app) provisionCmd() *cobra.Command {
	var identifier, label, pin string
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create a principal; the secret is read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.withEngine(cmd.Context(), func(engine *goGate.Engine) error {
				res, err := engine.ProvisionPrincipal(cmd.Context(), goGate.ProvisionRequest{
					Identifier: identifier,
					Label:      label,
					Secret:     secret,
					PIN:        pin,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "principal_id: %s\n", res.PrincipalID)
				fmt.Fprintf(out, "identifier:   %s\n", res.Identifier)
				fmt.Fprintf(out, "passkey:      %s\n", res.PasskeyKind)
				if res.OTPAuthURI != "" {
					fmt.Fprintf(out, "otpauth:      %s\n", res.OTPAuthURI)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&identifier, "identifier", "", "sign-in identifier (required)")
	f.StringVar(&label, "label", "", "display label shown in presence")
	f.StringVar(&pin, "pin", "", "static numeric passkey; omit to enroll TOTP")
	_ = cmd.MarkFlagRequired("identifier")
	return cmd
}

func (a *app) unlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <principal-id>",
		Short: "Clear a principal's lockout and failure counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(engine *goGate.Engine) error {
				if err := engine.UnlockPrincipal(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s\n", args[0])
				return nil
			})
		},
	}
}

func (a *app) hashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Print the argon2id hash of the secret on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg := password.DefaultConfig()
			cfg.Memory = a.settings.Password.Memory
			cfg.Time = a.settings.Password.Time
			cfg.Parallelism = a.settings.Password.Parallelism
			cfg.MinLength = a.settings.Password.MinLength
			hasher, err := password.NewArgon2(cfg)
			if err != nil {
				return err
			}
			encoded, err := hasher.Hash(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return nil
		},
	}
}
