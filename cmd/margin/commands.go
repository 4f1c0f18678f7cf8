package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/margin"
	bt "github.com/fwojciec/margin/bubbletea"
	"github.com/fwojciec/margin/goldmark"
	"github.com/spf13/cobra"
)

// readText returns the text given inline with --<name> or read from
// --<name>-file.
func readText(name, inline, file string) (string, error) {
	if inline != "" && file != "" {
		return "", fmt.Errorf("use only one of --%s and --%s-file", name, name)
	}
	if file == "" {
		return inline, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read %s file: %w", name, err)
	}
	return string(data), nil
}

func chatCmd(a *app) *cobra.Command {
	var seed, seedFile string
	cmd := &cobra.Command{
		Use:   "chat <document>",
		Short: "Open the interactive chat for a document",
		Long:  "Resumes the most recently updated session of the document, or starts one seeded with the given context.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seedContext, err := readText("seed", seed, seedFile)
			if err != nil {
				return err
			}
			chat, err := a.newChat(cmd.Context())
			if err != nil {
				return err
			}
			session := chat.GetOrCreateSession(cmd.Context(), args[0], seedContext)
			m := bt.New(chat, session, margin.DefaultTheme())
			if err := bt.Run(cmd.Context(), m); err != nil {
				return fmt.Errorf("TUI: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "Seed context for a new session")
	cmd.Flags().StringVar(&seedFile, "seed-file", "", "File holding the seed context for a new session")
	return cmd
}

func sendCmd(a *app) *cobra.Command {
	var sessionID, seed, seedFile string
	cmd := &cobra.Command{
		Use:   "send <document> <text>",
		Short: "Send one message and print the reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, text := args[0], args[1]
			seedContext, err := readText("seed", seed, seedFile)
			if err != nil {
				return err
			}
			chat, err := a.newChat(ctx)
			if err != nil {
				return err
			}
			var session margin.Session
			if sessionID == "" {
				session = chat.GetOrCreateSession(ctx, doc, seedContext)
			} else {
				if session, err = chat.SwitchSession(ctx, doc, sessionID); err != nil {
					return err
				}
			}
			reply, err := chat.SendMessage(ctx, doc, session.ID, text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), bt.Sanitize(reply))
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (default: most recently updated)")
	cmd.Flags().StringVar(&seed, "seed", "", "Seed context when a session is created")
	cmd.Flags().StringVar(&seedFile, "seed-file", "", "File holding the seed context when a session is created")
	return cmd
}

func actCmd(a *app) *cobra.Command {
	var selection, selectionFile, instructions string
	var pick int
	cmd := &cobra.Command{
		Use:   "act <action> <document>",
		Short: "Run a writing action and print the proposed variations",
		Long: "Applies the action to the selection, or to the whole document when no selection is given, and prints the variations the model proposes.\n\n" +
			"Selection actions: " + actionNames(margin.SelectionActions) + "\n" +
			"Document actions:  " + actionNames(margin.GeneralActions),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			action, err := margin.ParseAction(args[0])
			if err != nil {
				return err
			}
			text, err := readText("selection", selection, selectionFile)
			if err != nil {
				return err
			}
			switch {
			case text == "" && !action.ForDocument():
				return fmt.Errorf("%s needs --selection or --selection-file: %w", action, margin.ErrValidation)
			case text != "" && !action.ForSelection():
				return fmt.Errorf("%s applies to the whole document, not a selection: %w", action, margin.ErrValidation)
			case instructions != "" && !action.TakesInstructions():
				return fmt.Errorf("%s takes no --instructions: %w", action, margin.ErrValidation)
			case pick < 0:
				return fmt.Errorf("--pick must be positive")
			}
			if text == "" {
				data, err := os.ReadFile(args[1])
				if err != nil {
					return fmt.Errorf("read document: %w", err)
				}
				text = string(data)
			}

			actor, err := a.newActor(ctx)
			if err != nil {
				return err
			}
			a.logger.Debug("running action", "action", string(action), "document", args[1], "selection", selection != "" || selectionFile != "")
			variations, err := actor.Run(ctx, action, text, instructions)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if pick > 0 {
				if pick > len(variations) {
					return fmt.Errorf("--pick %d: the model proposed %d variations", pick, len(variations))
				}
				fmt.Fprintln(out, bt.Sanitize(variations[pick-1]))
				return nil
			}
			for i, v := range variations {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "[%d]\n%s\n", i+1, bt.Sanitize(v))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&selection, "selection", "", "Selected text to act on (default: the whole document)")
	cmd.Flags().StringVar(&selectionFile, "selection-file", "", "File holding the selected text")
	cmd.Flags().StringVar(&instructions, "instructions", "", "Additional instructions for the model")
	cmd.Flags().IntVar(&pick, "pick", 0, "Print only the n-th variation")
	return cmd
}

func actionNames(actions []margin.Action) string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

func listCmd(a *app) *cobra.Command {
	var match string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents that have sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if match != "" && !doublestar.ValidatePattern(match) {
				return fmt.Errorf("invalid --match pattern %q", match)
			}
			docs, err := filterDocuments(a.store.Documents(ctx), match)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, doc := range docs {
				fmt.Fprintf(out, "%s\t%d\n", doc, len(a.store.SessionsFor(ctx, doc)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&match, "match", "", "Only documents matching this glob (supports **)")
	return cmd
}

// filterDocuments keeps the documents matching pattern. An empty pattern
// keeps all.
func filterDocuments(docs []string, pattern string) ([]string, error) {
	if pattern == "" {
		return docs, nil
	}
	var out []string
	for _, doc := range docs {
		ok, err := doublestar.Match(pattern, doc)
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", pattern, err)
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func sessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <document>",
		Short: "List the sessions of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions := a.store.SessionsFor(cmd.Context(), args[0])
			if len(sessions) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No sessions for %s\n", args[0])
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), sessionTable(sessions))
			return nil
		},
	}
}

func newCmd(a *app) *cobra.Command {
	var name, seed, seedFile string
	cmd := &cobra.Command{
		Use:   "new <document>",
		Short: "Start a new session for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seedContext, err := readText("seed", seed, seedFile)
			if err != nil {
				return err
			}
			s := a.store.Create(cmd.Context(), args[0], seedContext, name)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.ID, s.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Session name (default: timestamped)")
	cmd.Flags().StringVar(&seed, "seed", "", "Seed context")
	cmd.Flags().StringVar(&seedFile, "seed-file", "", "File holding the seed context")
	return cmd
}

func renameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <document> <session-id> <name>",
		Short: "Rename a session",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[2])
			if name == "" {
				return fmt.Errorf("name must not be empty")
			}
			if !a.store.Rename(cmd.Context(), args[0], args[1], name) {
				return fmt.Errorf("%s/%s: %w", args[0], args[1], margin.ErrSessionNotFound)
			}
			return nil
		},
	}
}

func deleteCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <document> <session-id>",
		Short: "Delete a session",
		Long:  "Deletes a session. The only session of a document is kept unless --force is given.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, id := args[0], args[1]
			if _, ok := a.store.Get(ctx, doc, id); !ok {
				return fmt.Errorf("%s/%s: %w", doc, id, margin.ErrSessionNotFound)
			}
			if len(a.store.SessionsFor(ctx, doc)) == 1 && !force {
				return fmt.Errorf("%w (use --force)", margin.ErrLastSession)
			}
			a.store.Delete(ctx, doc, id)
			if next, ok := mostRecent(a.store.SessionsFor(ctx, doc)); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s; most recent session is now %s (%s)\n", id, next.ID, next.Name)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Allow deleting the only session of a document")
	return cmd
}

func exportCmd(a *app) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <document> <session-id>",
		Short: "Export a session transcript as markdown or HTML",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := a.store.Get(cmd.Context(), args[0], args[1])
			if !ok {
				return fmt.Errorf("%s/%s: %w", args[0], args[1], margin.ErrSessionNotFound)
			}
			var text string
			switch format {
			case "markdown", "md":
				text = goldmark.Transcript(s)
			case "html":
				var err error
				if text, err = goldmark.TranscriptHTML(s); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q: must be markdown or html", format)
			}
			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			}
			if err := os.WriteFile(output, []byte(text), 0o600); err != nil {
				return fmt.Errorf("write transcript: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "markdown", "Output format: markdown or html")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

// mostRecent returns the most recently updated session; ties go to the
// earlier one.
func mostRecent(sessions []margin.Session) (margin.Session, bool) {
	if len(sessions) == 0 {
		return margin.Session{}, false
	}
	best := sessions[0]
	for _, s := range sessions[1:] {
		if s.UpdatedAt.After(best.UpdatedAt) {
			best = s
		}
	}
	return best, true
}
