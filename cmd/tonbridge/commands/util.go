package commands

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/creachadair/atomicfile"
	"github.com/spf13/cobra"

	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/config"
	"github.com/tonred/ton-trustless-bridge/libs/log"
	"github.com/tonred/ton-trustless-bridge/light"
	"github.com/tonred/ton-trustless-bridge/light/provider/dir"
	"github.com/tonred/ton-trustless-bridge/light/store"
	dbs "github.com/tonred/ton-trustless-bridge/light/store/db"
)

const (
	blocksDirFlag = "blocks-dir"
	outFlag       = "out"
	queryIDFlag   = "query-id"

	trustedStoreID = "trusted-states"
)

// readCell reads a bag of cells stored raw or as base64 text.
func readCell(path string) (*cell.Cell, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := cell.FromBOC(bz)
	if err == nil {
		return c, nil
	}
	decoded, b64Err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(bz)))
	if b64Err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cell.FromBOC(decoded)
}

// writeCell writes the bag of cells of c to path, or base64 to w when path
// is empty.
func writeCell(w io.Writer, path string, c *cell.Cell) error {
	boc := c.ToBOC()
	if path == "" {
		_, err := fmt.Fprintln(w, base64.StdEncoding.EncodeToString(boc))
		return err
	}
	_, err := atomicfile.WriteAll(path, bytes.NewReader(boc), 0644)
	return err
}

func parseHashes(list []string) ([][]byte, error) {
	hashes := make([][]byte, len(list))
	for i, h := range list {
		bz, err := hex.DecodeString(strings.TrimPrefix(h, "0x"))
		if err != nil {
			return nil, fmt.Errorf("hash %q: %w", h, err)
		}
		if len(bz) != 32 {
			return nil, fmt.Errorf("hash %q has %d bytes, expected 32", h, len(bz))
		}
		hashes[i] = bz
	}
	return hashes, nil
}

func openTrustedStore(conf *config.Config) (store.Store, func() error, error) {
	db, err := config.DefaultDBProvider(&config.DBContext{ID: trustedStoreID, Config: conf})
	if err != nil {
		return nil, nil, fmt.Errorf("open trusted store: %w", err)
	}
	return dbs.New(db, conf.Light.Network), db.Close, nil
}

// newClient opens the trusted store and a light client over the blocks
// directory. The caller must call the returned close function.
func newClient(ctx context.Context, cmd *cobra.Command, conf *config.Config, logger log.Logger, opts ...light.Option) (*light.Client, func() error, error) {
	blocksDir, err := cmd.Flags().GetString(blocksDirFlag)
	if err != nil {
		return nil, nil, err
	}
	if blocksDir == "" {
		return nil, nil, errors.New("--blocks-dir is required")
	}

	trustedStore, closeStore, err := openTrustedStore(conf)
	if err != nil {
		return nil, nil, err
	}

	opts = append([]light.Option{
		light.Logger(logger.With("module", "light")),
		light.StateID(conf.Light.StateID),
		light.RequestTimeout(conf.Light.RequestTimeout),
		light.MaxSyncSteps(conf.Light.MaxSyncSteps),
		light.PruningSize(conf.Light.PruningSize),
	}, opts...)
	c, err := light.NewClient(ctx, conf.Light.GenesisSeqno, dir.New(blocksDir), trustedStore, opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return c, closeStore, nil
}

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String(blocksDirFlag, "", "directory with <seqno>.boc blocks and <seqno>.sigs.json signatures")
	cmd.Flags().Uint64(queryIDFlag, 0, "query id of the message")
}
