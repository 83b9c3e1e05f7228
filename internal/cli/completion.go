package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for modelstore.

To load completions for your shell:

Bash:
  # To load completions for each session, execute once:
  # Linux:
  modelstore completion bash > /etc/bash_completion.d/modelstore
  # macOS:
  modelstore completion bash > /usr/local/etc/bash_completion.d/modelstore

  # Or add to your ~/.bashrc or ~/.bash_profile:
  source <(modelstore completion bash)

Zsh:
  # To load completions for each session, execute once:
  modelstore completion zsh > "${fpath[1]}/_modelstore"

  # Or add to your ~/.zshrc:
  source <(modelstore completion zsh)

  # You may need to force rebuild the completion cache:
  rm -f ~/.zcompdump
  compinit

Fish:
  # To load completions for each session, execute once:
  modelstore completion fish > ~/.config/fish/completions/modelstore.fish

  # Or add to your ~/.config/fish/config.fish:
  modelstore completion fish | source

PowerShell:
  # To load completions for each session, run:
  modelstore completion powershell | Out-String | Invoke-Expression

  # Or add to your PowerShell profile:
  # (Microsoft.PowerShell_profile.ps1 or profile.ps1)
  modelstore completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.ExactValidArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch shell := args[0]; shell {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell type: %s", shell)
			}
		},
	}
}
