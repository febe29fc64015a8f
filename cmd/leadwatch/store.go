package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"
)

func storeCommand() *cli.Command {
	return &cli.Command{
		Name:  "store",
		Usage: "List what is kept in the local credential store (tokens masked)",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.KVStorage.Entries(ctx)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return writeEntryTable(os.Stdout, a.DB.Path(), entries)
		},
	}
}
