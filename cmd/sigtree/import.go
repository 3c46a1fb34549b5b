package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/sigtree/codec"
	"github.com/hupe1980/sigtree/store"
	"github.com/hupe1980/sigtree/store/badgerstore"
	"github.com/spf13/cobra"
)

type importFlags struct {
	input string
	db    string
	codec string
}

func newImportCmd(g *globalFlags) *cobra.Command {
	f := &importFlags{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON dataset into a badger store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd, g, f)
		},
	}

	cmd.Flags().StringVarP(&f.input, "input", "i", "", "JSON dataset file (required)")
	cmd.Flags().StringVar(&f.db, "db", "", "badger database directory (required)")
	cmd.Flags().StringVar(&f.codec, "codec", codec.Default.Name(), "dataset and record codec: json, go-json")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func runImport(cmd *cobra.Command, g *globalFlags, f *importFlags) error {
	ctx := cmd.Context()
	logger, err := g.logger(cmd)
	if err != nil {
		return err
	}
	c, err := codec.Lookup(f.codec)
	if err != nil {
		return err
	}

	in, err := os.Open(f.input)
	if err != nil {
		return err
	}
	defer in.Close()

	st, err := store.LoadJSON(in, c)
	if err != nil {
		return err
	}

	cfg := badgerstore.DefaultConfig(f.db)
	cfg.Logger = logger.Logger
	db, err := badgerstore.OpenDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := badgerstore.Import(ctx, db, st, c); err != nil {
		return err
	}

	logger.InfoContext(ctx, "store imported", "items", st.Size(), "regions", st.RegionSize(), "cells", st.CellSize(), "db", f.db)
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d items into %s\n", st.Size(), f.db)
	return nil
}
