// Command mirrorctl is an administrative client for the mirrorset
// control plane: it builds a MirrorSet from a YAML leg manifest and
// exercises construction, io_balance, io_cmd, and status rendering
// against it, printing the resulting INFO/TABLE text to stdout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/blockmirror/mirrorset"
	"github.com/blockmirror/mirrorset/internal/logging"
)

var legsFile string

// policyOverride is a pflag.Value that validates its argument against
// the known policy names as it's parsed, rather than deferring the
// check to manifest.build.
type policyOverride struct{ value string }

func (p *policyOverride) String() string { return p.value }
func (p *policyOverride) Type() string   { return "policy" }
func (p *policyOverride) Set(s string) error {
	switch s {
	case "", "core", "round_robin", "logical_part", "weighted":
		p.value = s
		return nil
	default:
		return fmt.Errorf("unknown policy %q", s)
	}
}

var policyFlag policyOverride

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mirrorctl",
		Short: "Administrative client for a mirrorset device",
	}
	root.PersistentFlags().StringVar(&legsFile, "legs-file", "", "YAML leg manifest (required)")
	root.PersistentFlags().Var(&policyFlag, "policy", "override the manifest's policy (core, round_robin, logical_part, weighted)")
	root.AddCommand(newCreateCmd(), newIOBalanceCmd(), newIOCmdCmd(), newStatusCmd())
	return root
}

func requireLegsFile() (*manifest, error) {
	if legsFile == "" {
		return nil, mirrorset.NewError("CLI", mirrorset.ErrCodeInvalidArgument, "--legs-file is required")
	}
	m, err := loadManifest(legsFile)
	if err != nil {
		return nil, err
	}
	if policyFlag.value != "" {
		m.Policy = policyFlag.value
	}
	return m, nil
}

var _ pflag.Value = (*policyOverride)(nil)

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Validate a leg manifest and print the resulting TABLE status (the construction string's device portion)",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := requireLegsFile()
			if err != nil {
				return err
			}
			ms, err := m.build(nil)
			if err != nil {
				return err
			}
			defer ms.Close()

			logging.Default().Infof("mirrorset %s constructed with %d legs", m.Name, len(m.Legs))
			fmt.Println(ms.Table())
			return nil
		},
	}
}

func newIOBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "io-balance <policy> <param> <value>",
		Short: "Apply an io_balance control message and print the resulting INFO status",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := requireLegsFile()
			if err != nil {
				return err
			}
			ms, err := m.build(nil)
			if err != nil {
				return err
			}
			defer ms.Close()

			if err := ms.HandleIOBalance(args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Println(ms.Info())
			return nil
		},
	}
}

func newIOCmdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "io-cmd <command> <arg1> <arg2>",
		Short: "Apply an io_cmd control message (set_weight, check_data_mirror_all, check_data_mirror_block)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := requireLegsFile()
			if err != nil {
				return err
			}
			ms, err := m.build(nil)
			if err != nil {
				return err
			}
			defer ms.Close()

			out, err := ms.HandleIOCmd(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			if out != "" {
				fmt.Println(out)
			}
			fmt.Println(ms.Info())
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the INFO and TABLE status strings for a manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := requireLegsFile()
			if err != nil {
				return err
			}
			ms, err := m.build(nil)
			if err != nil {
				return err
			}
			defer ms.Close()

			fmt.Println(ms.Info())
			fmt.Println(ms.Table())
			return nil
		},
	}
}
