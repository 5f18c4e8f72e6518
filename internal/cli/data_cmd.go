// data_cmd.go - handlers for whole-database commands: stats, check,
// export, import and config.

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// HandleStats prints row counts and the journal mode.
func HandleStats(cfg *Config, args Args) error {
	_, st, err := openService(cfg, args)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats()
	if err != nil {
		return err
	}
	mode, err := st.JournalMode()
	if err != nil {
		return err
	}

	if args.JSON {
		return printJSON(map[string]any{
			"conversations": stats["conversations"],
			"messages":      stats["messages"],
			"attachments":   stats["message_attachments"],
			"journalMode":   mode,
		})
	}

	fmt.Printf("Conversations: %d\n", stats["conversations"])
	fmt.Printf("Messages:      %d\n", stats["messages"])
	fmt.Printf("Attachments:   %d\n", stats["message_attachments"])
	fmt.Printf("Journal mode:  %s\n", mode)
	return nil
}

// HandleCheck runs the SQLite integrity check.
func HandleCheck(cfg *Config, args Args) error {
	_, st, err := openService(cfg, args)
	if err != nil {
		return err
	}
	defer st.Close()

	ok, err := st.CheckIntegrity()
	if err != nil {
		return err
	}

	if args.JSON {
		return printJSON(map[string]bool{"ok": ok})
	}
	if !ok {
		return errors.New("integrity check FAILED, restore from a backup or export what still reads")
	}
	fmt.Println("Database integrity: ok")
	return nil
}

// HandleExport writes the whole database as JSON, to a file when one is
// named and to stdout otherwise.
func HandleExport(cfg *Config, args Args) error {
	_, st, err := openService(cfg, args)
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := st.Export()
	if err != nil {
		return err
	}

	if len(args.Raw) > 0 {
		path := args.Raw[0]
		if err := os.WriteFile(path, data, 0600); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Printf("Exported %d bytes to %s.\n", len(data), path)
		return nil
	}

	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}

// HandleImport replaces all stored data with the contents of a JSON
// export file.
func HandleImport(cfg *Config, args Args) error {
	if len(args.Raw) < 1 {
		return errors.New("usage: chatvault import <file> --confirm")
	}
	if !args.Confirm {
		return errors.New("import replaces every stored conversation, re-run with --confirm")
	}

	data, err := os.ReadFile(args.Raw[0])
	if err != nil {
		return fmt.Errorf("read export: %w", err)
	}

	_, st, err := openService(cfg, args)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Import(data); err != nil {
		return err
	}

	stats, err := st.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d conversations, %d messages, %d attachments.\n",
		stats["conversations"], stats["messages"], stats["message_attachments"])
	return nil
}

// HandleConfig shows the resolved configuration or writes the default
// config file.
func HandleConfig(cfg *Config, args Args) error {
	switch args.Subcommand {
	case "", "show":
		path, err := ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				fmt.Printf("# %s\n\n", path)
			} else {
				fmt.Printf("# defaults (no file at %s)\n\n", path)
			}
		}
		return toml.NewEncoder(os.Stdout).Encode(cfg)

	case "init":
		path, err := ConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !args.Confirm {
			return fmt.Errorf("config already exists at %s, re-run with --confirm to overwrite", path)
		}
		if err := SaveConfig(DefaultConfig()); err != nil {
			return err
		}
		fmt.Printf("Wrote default config to %s.\n", path)
		return nil

	default:
		return fmt.Errorf("unknown config subcommand %q, want show or init", args.Subcommand)
	}
}
