package main

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/hashicorp/vault/shamir"
	"github.com/urfave/cli/v2"

	"github.com/custodia-vault/custodia/api"
	"github.com/custodia-vault/custodia/cmd/flags"
	"github.com/custodia-vault/custodia/cryptoutils"
	"github.com/custodia-vault/custodia/interfaces"
)

var vaultIDFlag = &cli.Uint64Flag{
	Name:     "vault",
	Required: true,
	Usage:    "vault id",
}

func main() {
	app := &cli.App{
		Name:  "vaultcli",
		Usage: "Operate custodia vaults: create, check in, trigger, claim, recover",
		Flags: append([]cli.Flag{flags.ServerAddrFlag, flags.IdentityFlag}, flags.CommonFlags...),
		Commands: []*cli.Command{
			keygenCommand(),
			createCommand(),
			checkinCommand(),
			triggerCommand(),
			statusCommand(),
			showCommand(),
			listCommand(),
			cancelCommand(),
			eventsCommand(),
			claimCommand(),
			sealBackupCommand(),
			openBackupCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func clientFromCtx(cCtx *cli.Context) (*api.Client, error) {
	raw := cCtx.String(flags.IdentityFlag.Name)
	if raw == "" {
		return nil, fmt.Errorf("--%s is required for this command", flags.IdentityFlag.Name)
	}
	identity, err := interfaces.NewIdentityFromHex(raw)
	if err != nil {
		return nil, err
	}
	return &api.Client{
		ServerAddr: cCtx.String(flags.ServerAddrFlag.Name),
		Identity:   identity,
	}, nil
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a beneficiary key pair for share wrapping",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Value: "beneficiary", Usage: "output file prefix; writes <out>.key and <out>.pub"},
		},
		Action: func(cCtx *cli.Context) error {
			privPEM, pubPEM, err := cryptoutils.GenerateRecipientKey()
			if err != nil {
				return err
			}

			prefix := cCtx.String("out")
			if err := os.WriteFile(prefix+".key", privPEM, 0o600); err != nil {
				return err
			}
			if err := os.WriteFile(prefix+".pub", pubPEM, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s.key and %s.pub\n", prefix, prefix)
			return nil
		},
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Put a secret under protection; prints the vault id and shares",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "beneficiary", Required: true, Usage: "beneficiary hex address"},
			&cli.StringFlag{Name: "beneficiary-pubkey", Required: true, Usage: "path to the beneficiary's PEM public key"},
			&cli.StringFlag{Name: "secret-file", Required: true, Usage: "path to the secret payload"},
			&cli.Int64Flag{Name: "inactivity-days", Value: 180, Usage: "inactivity period in days"},
			&cli.Int64Flag{Name: "grace-days", Value: 30, Usage: "grace period in days"},
		},
		Action: func(cCtx *cli.Context) error {
			client, err := clientFromCtx(cCtx)
			if err != nil {
				return err
			}

			secret, err := os.ReadFile(cCtx.String("secret-file"))
			if err != nil {
				return fmt.Errorf("could not read secret: %w", err)
			}
			pubKey, err := os.ReadFile(cCtx.String("beneficiary-pubkey"))
			if err != nil {
				return fmt.Errorf("could not read beneficiary public key: %w", err)
			}

			resp, err := client.CreateVault(api.CreateVaultRequest{
				Secret:               secret,
				Beneficiary:          cCtx.String("beneficiary"),
				BeneficiaryPubKey:    string(pubKey),
				InactivityPeriodSecs: cCtx.Int64("inactivity-days") * 86400,
				GracePeriodSecs:      cCtx.Int64("grace-days") * 86400,
			})
			if err != nil {
				return err
			}

			fmt.Printf("vault id:          %d\n", resp.VaultID)
			fmt.Printf("storage ref:       %s\n", resp.StorageRef)
			fmt.Printf("beneficiary share: %s\n", base64.StdEncoding.EncodeToString(resp.BeneficiaryShare))
			fmt.Printf("backup share:      %s\n", base64.StdEncoding.EncodeToString(resp.BackupShare))
			fmt.Println()
			fmt.Println("Deliver the beneficiary share out of band and secure the backup")
			fmt.Println("share offline (see the seal-backup command). The service keeps")
			fmt.Println("neither.")
			return nil
		},
	}
}

func checkinCommand() *cli.Command {
	return &cli.Command{
		Name:  "checkin",
		Usage: "Refresh owner liveness on a vault",
		Flags: []cli.Flag{vaultIDFlag},
		Action: func(cCtx *cli.Context) error {
			client, err := clientFromCtx(cCtx)
			if err != nil {
				return err
			}
			vault, err := client.CheckIn(interfaces.VaultID(cCtx.Uint64("vault")))
			if err != nil {
				return err
			}
			fmt.Printf("checked in; status=%s last_check_in=%s\n", vault.Status, vault.LastCheckIn)
			return nil
		},
	}
}

func triggerCommand() *cli.Command {
	return &cli.Command{
		Name:  "trigger",
		Usage: "Start recovery on a vault whose inactivity period elapsed",
		Flags: []cli.Flag{vaultIDFlag},
		Action: func(cCtx *cli.Context) error {
			client, err := clientFromCtx(cCtx)
			if err != nil {
				return err
			}
			vault, err := client.Trigger(interfaces.VaultID(cCtx.Uint64("vault")))
			if err != nil {
				return err
			}
			fmt.Printf("triggered; grace period of %ds is running\n", vault.GracePeriodSecs)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the advisory status of a vault",
		Flags: []cli.Flag{vaultIDFlag},
		Action: func(cCtx *cli.Context) error {
			client, err := clientFromCtx(cCtx)
			if err != nil {
				return err
			}
			status, err := client.GetStatus(interfaces.VaultID(cCtx.Uint64("vault")))
			if err != nil {
				return err
			}
			fmt.Printf("status:             %s\n", status.Status)
			fmt.Printf("time until trigger: %ds\n", status.TimeUntilTriggerSecs)
			fmt.Printf("time until claim:   %ds\n", status.TimeUntilClaimSecs)
			fmt.Printf("can trigger:        %v\n", status.CanTrigger)
			fmt.Printf("can claim:          %v\n", status.CanClaim)
			return nil
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show a vault record",
		Flags: []cli.Flag{vaultIDFlag},
		Action: func(cCtx *cli.Context) error {
			client, err := clientFromCtx(cCtx)
			if err != nil {
				return err
			}
			vault, err := client.GetVault(interfaces.VaultID(cCtx.Uint64("vault")))
			if err != nil {
				return err
			}
			fmt.Printf("id:          %d\n", vault.ID)
			fmt.Printf("owner:       %s\n", vault.Owner)
			fmt.Printf("beneficiary: %s\n", vault.Beneficiary)
			fmt.Printf("status:      %s\n", vault.Status)
			fmt.Printf("created:     %s\n", vault.CreatedAt)
			fmt.Printf("last checkin: %s\n", vault.LastCheckIn)
			if vault.TriggerTime != nil {
				fmt.Printf("triggered:   %s\n", *vault.TriggerTime)
			}
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List vault ids by owner or beneficiary",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Usage: "owner hex address"},
			&cli.StringFlag{Name: "beneficiary", Usage: "beneficiary hex address"},
		},
		Action: func(cCtx *cli.Context) error {
			client, err := clientFromCtx(cCtx)
			if err != nil {
				return err
			}
			resp, err := client.ListVaults(cCtx.String("owner"), cCtx.String("beneficiary"))
			if err != nil {
				return err
			}
			for _, id := range resp.VaultIDs {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func cancelCommand() *cli.Command {
	return &cli.Command{
		Name:  "cancel",
		Usage: "Terminate a vault (owner only)",
		Flags: []cli.Flag{vaultIDFlag},
		Action: func(cCtx *cli.Context) error {
			client, err := clientFromCtx(cCtx)
			if err != nil {
				return err
			}
			vault, err := client.Cancel(interfaces.VaultID(cCtx.Uint64("vault")))
			if err != nil {
				return err
			}
			fmt.Printf("cancelled; status=%s\n", vault.Status)
			return nil
		},
	}
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Print the ledger's append-only event log",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "since", Usage: "only events after this sequence number"},
		},
		Action: func(cCtx *cli.Context) error {
			client, err := clientFromCtx(cCtx)
			if err != nil {
				return err
			}
			events, err := client.Events(cCtx.Uint64("since"))
			if err != nil {
				return err
			}
			for _, event := range events {
				fmt.Printf("%d\t%s\tvault=%d\t%s\n", event.Seq, event.Kind, event.VaultID, event.Timestamp)
			}
			return nil
		},
	}
}

func claimCommand() *cli.Command {
	return &cli.Command{
		Name:  "claim",
		Usage: "Claim a triggered vault and recover the secret",
		Flags: []cli.Flag{
			vaultIDFlag,
			&cli.StringFlag{Name: "share", Required: true, Usage: "base64 beneficiary share, or @path to a file holding it"},
			&cli.StringFlag{Name: "key", Required: true, Usage: "path to the beneficiary's PEM private key"},
			&cli.StringFlag{Name: "out", Value: "secret.out", Usage: "file to write the recovered secret to"},
		},
		Action: func(cCtx *cli.Context) error {
			client, err := clientFromCtx(cCtx)
			if err != nil {
				return err
			}

			beneficiaryShare, err := readShareArg(cCtx.String("share"))
			if err != nil {
				return err
			}

			keyPEM, err := os.ReadFile(cCtx.String("key"))
			if err != nil {
				return fmt.Errorf("could not read private key: %w", err)
			}
			privateKey, err := cryptoutils.ParseRecipientPrivateKey(keyPEM)
			if err != nil {
				return err
			}

			claim, err := client.Claim(interfaces.VaultID(cCtx.Uint64("vault")))
			if err != nil {
				return err
			}

			heldShare, err := cryptoutils.UnwrapShare(privateKey, claim.HeldShare)
			if err != nil {
				return fmt.Errorf("could not unwrap released share: %w", err)
			}

			key, err := shamir.Combine([][]byte{beneficiaryShare, heldShare})
			if err != nil {
				return fmt.Errorf("could not combine shares: %w", err)
			}
			defer cryptoutils.WipeBytes(key)

			storageRef, err := interfaces.NewContentIDFromHex(claim.StorageRef)
			if err != nil {
				return err
			}
			sealed, err := client.FetchPayload(storageRef)
			if err != nil {
				return err
			}

			secret, err := cryptoutils.OpenPayload(key, sealed)
			if err != nil {
				return err
			}

			outPath := cCtx.String("out")
			if err := os.WriteFile(outPath, secret, 0o600); err != nil {
				return err
			}
			fmt.Printf("recovered secret written to %s\n", outPath)
			return nil
		},
	}
}

func sealBackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "seal-backup",
		Usage: "Seal the backup share under a passphrase for offline custody",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "share", Required: true, Usage: "base64 backup share, or @path to a file holding it"},
			&cli.StringFlag{Name: "passphrase", Required: true, Usage: "sealing passphrase"},
			&cli.StringFlag{Name: "out", Value: "backup.sealed", Usage: "output file"},
		},
		Action: func(cCtx *cli.Context) error {
			share, err := readShareArg(cCtx.String("share"))
			if err != nil {
				return err
			}
			sealed, err := cryptoutils.SealShareWithPassphrase(share, cCtx.String("passphrase"))
			if err != nil {
				return err
			}
			outPath := cCtx.String("out")
			if err := os.WriteFile(outPath, sealed, 0o600); err != nil {
				return err
			}
			fmt.Printf("sealed backup share written to %s\n", outPath)
			return nil
		},
	}
}

func openBackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "open-backup",
		Usage: "Open a passphrase-sealed backup share",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Required: true, Usage: "sealed backup share file"},
			&cli.StringFlag{Name: "passphrase", Required: true, Usage: "sealing passphrase"},
		},
		Action: func(cCtx *cli.Context) error {
			sealed, err := os.ReadFile(cCtx.String("file"))
			if err != nil {
				return err
			}
			share, err := cryptoutils.OpenShareWithPassphrase(sealed, cCtx.String("passphrase"))
			if err != nil {
				return err
			}
			fmt.Println(base64.StdEncoding.EncodeToString(share))
			return nil
		},
	}
}

// readShareArg accepts either a base64 share inline or @path to a file
// containing the base64 form.
func readShareArg(arg string) ([]byte, error) {
	encoded := arg
	if strings.HasPrefix(arg, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, fmt.Errorf("could not read share file: %w", err)
		}
		encoded = strings.TrimSpace(string(data))
	}

	share, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("share is not valid base64: %w", err)
	}
	return share, nil
}
