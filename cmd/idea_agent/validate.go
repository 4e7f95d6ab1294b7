package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/idea-forge/internal/artifacts"
	"github.com/jonathan/idea-forge/internal/schemas"
)

var validateCommand = &cobra.Command{
	Use:   "validate <reviewer|fact_checker> <file>",
	Short: "Validate an agent output file against its template, repairing once if needed",
	Long: `Checks a reviewer or fact-checker JSON file against the TODO template of its
type. Markdown fences around the JSON are tolerated. When the file is invalid
one repair pass is attempted; --write stores the repaired result in place.`,
	Args: cobra.ExactArgs(2),
	RunE: runValidateCmd,
}

var (
	validateWrite  bool
	validateSchema bool
)

func init() {
	validateCommand.Flags().BoolVarP(&validateWrite, "write", "w", false, "Rewrite the file with the validated (and repaired) JSON")
	validateCommand.Flags().BoolVar(&validateSchema, "print-schema", false, "Print the JSON Schema derived from the template and exit")
	rootCmd.AddCommand(validateCommand)
}

func runValidateCmd(cmd *cobra.Command, args []string) error {
	schemaType, path := args[0], args[1]
	out := cmd.OutOrStdout()

	registry := schemas.NewRegistry(flags.templatesDir)
	schema, err := registry.Get(schemaType)
	if err != nil {
		return fmt.Errorf("%w (known types: %s)", err, strings.Join(registry.Types(), ", "))
	}

	if validateSchema {
		doc, err := schema.JSONSchema()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(doc))
		return nil
	}

	data, err := schemas.LoadFile(path)
	if err != nil {
		return err
	}

	if ok, _ := schema.Validate(data); ok {
		fmt.Fprintf(out, "✅ %s is a valid %s output\n", path, schemaType)
		return writeValidated(path, data)
	}

	fixed, repaired, err := schema.ValidateAndRepair(data)
	if err != nil {
		var repairErr *schemas.RepairError
		if errors.As(err, &repairErr) {
			fmt.Fprintf(out, "❌ %s is not a valid %s output\n", path, schemaType)
		}
		return err
	}
	if repaired {
		fmt.Fprintf(out, "🔧 %s was repaired into a valid %s output\n", path, schemaType)
	}
	return writeValidated(path, fixed)
}

func writeValidated(path string, data map[string]any) error {
	if !validateWrite {
		return nil
	}
	return artifacts.WriteJSON(path, data)
}
