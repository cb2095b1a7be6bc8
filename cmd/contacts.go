package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newContactsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage saved contacts used to resolve recipient names",
	}
	cmd.AddCommand(newContactsAddCmd(opts))
	cmd.AddCommand(newContactsListCmd(opts))
	cmd.AddCommand(newContactsRemoveCmd(opts))
	return cmd
}

func newContactsAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "add NAME EMAIL",
		Short:   "Save a contact",
		Example: `  inboxreply contacts add "John Doe" john.doe@example.com`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			if err := a.store.SaveContact(args[0], args[1]); err != nil {
				return err
			}
			printSuccess(a.out, fmt.Sprintf("Saved %s <%s>", args[0], args[1]))
			return nil
		},
	}
}

func newContactsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved contacts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			contacts := a.store.Contacts()

			printHeading(a.out, "Contacts")
			if len(contacts) == 0 {
				printMuted(a.out, "No saved contacts")
				return nil
			}
			names := make([]string, 0, len(contacts))
			for name := range contacts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				printField(a.out, name, contacts[name])
			}
			return nil
		},
	}
}

func newContactsRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Remove a saved contact",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			removed, err := a.store.RemoveContact(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no contact named %q", args[0])
			}
			printSuccess(a.out, "Removed "+args[0])
			return nil
		},
	}
}
