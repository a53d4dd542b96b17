// Command gamechaind is the gamechain node binary. It owns genesis
// construction, local chain-data management, and key generation; block
// production, peer gossip, and the RPC surface are external-collaborator
// concerns this binary does not provide (see the runtime package's block
// lifecycle, which it drives directly against a local Store).
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gamechain/internal/chainerr"
)

// envFlag selects the configuration overlay merged over cmd/config's
// default.yaml (e.g. "bootstrap"), mirroring pkg/config.Load's env param.
var envFlag string

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("failed to load .env file")
	}

	root := &cobra.Command{Use: "gamechaind", Short: "gamechain node"}
	root.PersistentFlags().StringVar(&envFlag, "env", "", "configuration environment overlay")

	root.AddCommand(buildSpecCmd())
	root.AddCommand(purgeChainCmd())
	root.AddCommand(importBlocksCmd())
	root.AddCommand(exportBlocksCmd())
	root.AddCommand(revertCmd())
	root.AddCommand(keyCmd())

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Error("gamechaind command failed")
		os.Exit(1)
	}
}

func buildSpecCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "build-spec",
		Short: "write a genesis specification template to the configured genesis file",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openChain()
			if err != nil {
				return err
			}
			defer c.Close()

			spec := GenesisSpec{ChainID: c.cfg.Chain.ID, Balances: map[string]uint64{}, Validators: []string{}}
			if raw {
				var loadErr error
				spec, loadErr = readGenesisSpec(genesisFilePath(c))
				if loadErr != nil {
					return loadErr
				}
			}
			if err := writeGenesisSpec(genesisFilePath(c), spec); err != nil {
				return err
			}
			fmt.Printf("genesis spec written to %s\n", genesisFilePath(c))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "round-trip the existing genesis file instead of writing a blank template")
	return cmd
}

func purgeChainCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge-chain",
		Short: "delete local chain data (WAL, snapshot, and blocks log)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return chainerr.New(chainerr.IO, "refusing to purge without --yes")
			}
			c, err := openChain()
			if err != nil {
				return err
			}
			paths := []string{c.cfg.Storage.WALPath, c.cfg.Storage.SnapshotPath, c.cfg.Storage.BlocksLog}
			if err := c.Close(); err != nil {
				return err
			}
			for _, p := range paths {
				if p == "" {
					continue
				}
				if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
					return wrapIO("remove "+p, err)
				}
			}
			fmt.Println("chain data purged")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion of local chain data")
	return cmd
}

func importBlocksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-blocks [file]",
		Short: "replay a JSONL file of exported blocks against the local chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openChain()
			if err != nil {
				return err
			}
			defer c.Close()

			if c.store.Height() == 0 {
				genesisPath := genesisFilePath(c)
				if fileExists(genesisPath) {
					spec, err := readGenesisSpec(genesisPath)
					if err != nil {
						return err
					}
					if err := c.applyGenesis(spec); err != nil {
						return err
					}
					logrus.WithField("chain_id", spec.ChainID).Info("genesis applied")
				}
			}

			records, err := readBlockRecords(args[0])
			if err != nil {
				return err
			}
			applied := 0
			for _, rec := range records {
				if rec.Header.Number <= uint32(c.store.Height()) {
					continue // already past this height, skip
				}
				result, canonical, err := applyBlockRecord(c.runtime, rec)
				if err != nil {
					return chainerr.New(chainerr.IO, "apply block %d: %v", rec.Header.Number, err)
				}
				if len(result.Rejected) > 0 {
					logrus.WithField("height", result.Header.Number).Warnf("%d transactions rejected", len(result.Rejected))
				}
				if c.cfg.Storage.BlocksLog != "" {
					if err := appendBlockRecord(c.cfg.Storage.BlocksLog, canonical); err != nil {
						return err
					}
				}
				applied++
			}
			fmt.Printf("imported %d blocks, chain height now %d\n", applied, c.store.Height())
			return nil
		},
	}
	return cmd
}

func exportBlocksCmd() *cobra.Command {
	var from, to uint32
	cmd := &cobra.Command{
		Use:   "export-blocks [file]",
		Short: "write this node's locally applied blocks to a JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openChain()
			if err != nil {
				return err
			}
			defer c.Close()

			if c.cfg.Storage.BlocksLog == "" || !fileExists(c.cfg.Storage.BlocksLog) {
				return chainerr.New(chainerr.ItemNotFound, "no local blocks log to export from")
			}
			records, err := readBlockRecords(c.cfg.Storage.BlocksLog)
			if err != nil {
				return err
			}

			if err := os.Remove(args[0]); err != nil && !os.IsNotExist(err) {
				return wrapIO("truncate export file", err)
			}

			written := 0
			for _, rec := range records {
				if rec.Header.Number < from {
					continue
				}
				if to > 0 && rec.Header.Number > to {
					continue
				}
				if err := appendBlockRecord(args[0], rec); err != nil {
					return err
				}
				written++
			}
			fmt.Printf("exported %d blocks to %s\n", written, args[0])
			return nil
		},
	}
	cmd.Flags().Uint32Var(&from, "from", 0, "lowest block number to export")
	cmd.Flags().Uint32Var(&to, "to", 0, "highest block number to export (0 = no upper bound)")
	return cmd
}

func revertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revert [height]",
		Short: "truncate the local blocks log to the given height",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target uint32
			if _, err := fmt.Sscanf(args[0], "%d", &target); err != nil {
				return chainerr.New(chainerr.DecodeMalformed, "height must be a non-negative integer")
			}
			c, err := openChain()
			if err != nil {
				return err
			}
			defer c.Close()

			if c.cfg.Storage.BlocksLog == "" || !fileExists(c.cfg.Storage.BlocksLog) {
				return chainerr.New(chainerr.ItemNotFound, "no local blocks log to revert")
			}
			records, err := readBlockRecords(c.cfg.Storage.BlocksLog)
			if err != nil {
				return err
			}
			if err := os.Remove(c.cfg.Storage.BlocksLog); err != nil {
				return wrapIO("remove blocks log", err)
			}
			kept := 0
			for _, rec := range records {
				if rec.Header.Number > target {
					continue
				}
				if err := appendBlockRecord(c.cfg.Storage.BlocksLog, rec); err != nil {
					return err
				}
				kept++
			}
			fmt.Printf("blocks log truncated to %d blocks at or below height %d\n", kept, target)
			if uint32(c.store.Height()) > target {
				fmt.Println("the local Store already committed past this height and cannot roll back state in place;")
				fmt.Println("run purge-chain and import-blocks against the truncated log to reach the reverted height")
			}
			return nil
		},
	}
	return cmd
}
