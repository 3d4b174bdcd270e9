package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rustyeddy/exchange/client"
	"github.com/spf13/cobra"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Connect to an exchange server",
	Long: `Open an interactive trading session.

Ctrl+C or end of input sends QUIT before disconnecting.

Example:
  exchange client --addr 127.0.0.1:8888`,
	Args: cobra.NoArgs,
	RunE: runClient,
}

var clientAddr string

func init() {
	rootCmd.AddCommand(clientCmd)

	clientCmd.Flags().StringVarP(&clientAddr, "addr", "a", "127.0.0.1:8888", "server address")
}

func runClient(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, client.Banner)
	fmt.Fprintf(out, "\nConnecting to %s...\n", clientAddr)

	conn, err := net.DialTimeout("tcp", clientAddr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Fprint(out, "✓ Connected successfully!\n\n")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return client.Run(ctx, conn, cmd.InOrStdin(), out)
}
