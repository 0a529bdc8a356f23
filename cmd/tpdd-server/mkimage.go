package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"tpdd-server/internal/diskimage"
)

var mkimageCmd = &cobra.Command{
	Use:   "mkimage FILE",
	Short: "Create a blank, formatted disk image",
	Long: `Writes a new disk image to FILE, formatted the way the drive's own
format command would leave a fresh disk. The model is taken from the
file extension (.pdd1 or .pdd2) unless --model says otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runMkimage,
}

func init() {
	rootCmd.AddCommand(mkimageCmd)
}

func runMkimage(cmd *cobra.Command, args []string) error {
	path := args[0]
	model := diskimage.Model(flagModel)
	if model == 0 {
		m, ok := diskimage.DetectModel(path, 0)
		if !ok {
			return errors.Errorf("cannot tell the model from %q; use --model or a .pdd1/.pdd2 extension", path)
		}
		model = m
	}
	if err := diskimage.Create(path, model); err != nil {
		return err
	}
	fmt.Printf("Created %s %s image\n", model, path)
	return nil
}
