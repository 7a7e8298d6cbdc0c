package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dataroomhq/dataroom/pkg/apidef"
)

func newValidateCommand() *Command {
	cmd := &Command{
		Name:        "validate",
		Description: "Validate API definition files locally",
		Flags:       flag.NewFlagSet("validate", flag.ExitOnError),
		Run:         runValidate,
	}

	cmd.Flags.String("dir", ".", "Directory containing definition YAML files")

	return cmd
}

func runValidate(args []string) error {
	flags := flag.NewFlagSet("validate", flag.ExitOnError)
	dir := flags.String("dir", ".", "Directory containing definition YAML files")

	if err := flags.Parse(args); err != nil {
		return err
	}

	entries, err := os.ReadDir(*dir)
	if err != nil {
		return fmt.Errorf("failed to read definitions directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		def, err := apidef.LoadDefinition(filepath.Join(*dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("invalid definition %s: %w", entry.Name(), err)
		}
		names = append(names, def.Name)
	}

	if len(names) == 0 {
		return fmt.Errorf("no definition files found in %s", *dir)
	}

	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: ok\n", name)
	}
	fmt.Printf("%d definitions are valid\n", len(names))
	return nil
}
