package cli

import (
	"io"
	"sort"

	"github.com/spf13/cobra"
)

// completionGenerators maps a shell name to its cobra completion generator.
var completionGenerators = map[string]func(root *cobra.Command, w io.Writer) error{
	"bash":       func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletionV2(w, true) },
	"zsh":        func(root *cobra.Command, w io.Writer) error { return root.GenZshCompletion(w) },
	"fish":       func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
	"powershell": func(root *cobra.Command, w io.Writer) error { return root.GenPowerShellCompletionWithDesc(w) },
}

func newCompletionCommand() *cobra.Command {
	shells := make([]string, 0, len(completionGenerators))
	for name := range completionGenerators {
		shells = append(shells, name)
	}

	sort.Strings(shells)

	return &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for c3-scripts.

Bash:
  $ source <(c3-scripts completion bash)

Zsh (with compinit enabled):
  $ c3-scripts completion zsh > "${fpath[1]}/_c3-scripts"

Fish:
  $ c3-scripts completion fish > ~/.config/fish/completions/c3-scripts.fish

PowerShell:
  PS> c3-scripts completion powershell | Out-String | Invoke-Expression
`,
		// Completion needs neither tool config nor a project.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Args:              cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:         shells,
		RunE: func(cmd *cobra.Command, args []string) error {
			return completionGenerators[args[0]](cmd.Root(), cmd.OutOrStdout())
		},
	}
}
