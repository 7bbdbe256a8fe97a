package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zulandar/gepeto/internal/config"
	"github.com/zulandar/gepeto/internal/knowledge"
)

func newRecipesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "Manage the crafting recipe table",
	}
	cmd.AddCommand(newRecipesImportCmd())
	return cmd
}

func newRecipesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import crafting recipes",
		Long:  `Loads a JSON object mapping item names to recipe arrays ({"oak_planks": [...]}) into the recipe table. Existing items are replaced.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecipesImport(cmd, args[0])
		},
	}
}

func runRecipesImport(cmd *cobra.Command, path string) error {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("recipes: %w", err)
	}
	defer f.Close()

	gormDB, err := openDB(cfg)
	if err != nil {
		return err
	}
	n, err := knowledge.ImportRecipes(context.Background(), gormDB, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d items from %s\n", n, path)
	return nil
}
