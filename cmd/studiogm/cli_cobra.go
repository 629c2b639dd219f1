package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotsetgreg/studiogm/pkg/bus"
	"github.com/dotsetgreg/studiogm/pkg/gamestate"
	"github.com/dotsetgreg/studiogm/pkg/gm"
	"github.com/dotsetgreg/studiogm/pkg/memory"
	"github.com/dotsetgreg/studiogm/pkg/providers"
)

func executeCLI() error {
	root := buildRootCommand(true)
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var (
		showVersion bool
		flags       = &globalFlags{}
	)

	root := &cobra.Command{
		Use:   appName,
		Short: "AI narrated game studio simulation",
		Long: strings.TrimSpace(`studiogm runs a game development company simulation narrated by a language
model game master.

Found a studio with "new", continue it with "play", and inspect saves and
the memory index with the "saves" and "memory" commands.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file (default ~/.studiogm/config.json)")
	root.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(newNewCommand(flags))
	root.AddCommand(newPlayCommand(flags))
	root.AddCommand(newStatusCommand(flags))
	root.AddCommand(newSavesCommand(flags))
	root.AddCommand(newMemoryCommand(flags))
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		docsCmd := newDocsCommand(func() *cobra.Command { return buildRootCommand(false) })
		root.AddCommand(docsCmd)
	}

	return root
}

func newNewCommand(flags *globalFlags) *cobra.Command {
	var (
		creation  gamestate.CompanyCreation
		attrs     []string
		talents   []string
		noOpening bool
		showRaw   bool
	)

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Found a new studio and narrate its first day",
		Example: strings.Join([]string{
			"  studiogm new --company \"Pixel Forge\" --founder Sam",
			"  studiogm new --company Nimbus --founder Ada --attr tech=5 --attr luck=3 --talent \"rich heir\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parseAttributes(attrs)
			if err != nil {
				return err
			}
			creation.Character.Attributes = a
			creation.Character.Talents = parseTalents(talents)
			creation.Character.Difficulty = creation.Difficulty
			creation.Character.CEOName = creation.Founder

			gs, err := gamestate.NewGame(creation, time.Now())
			if err != nil {
				return err
			}

			rt, err := openRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			if err := rt.persist(ctx, gs); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Founded %s (save %s) with %s in the bank.\n", gs.CompanyName(), gs.SaveID(), gm.FormatMoney(gs.Funds()))
			if noOpening {
				return nil
			}

			events := bus.New(0)
			defer events.Close()
			eng, idx, err := rt.engine(ctx, gs, gm.WithEvents(events))
			if err != nil {
				return err
			}
			defer idx.Close()

			s := newSession(out, eng, rt.persist)
			s.showRaw = showRaw
			s.events = events
			res := s.turn(ctx, eng.GenerateOpening)
			if !res.OK {
				return nil
			}
			fmt.Fprintf(out, "Continue with: %s play %s\n", appName, gs.SaveID())
			return nil
		},
	}

	cmd.Flags().StringVar(&creation.CompanyName, "company", "", "Company name")
	cmd.Flags().StringVar(&creation.Founder, "founder", "", "Founder name")
	cmd.Flags().StringVar(&creation.Slogan, "slogan", "", "Company slogan")
	cmd.Flags().IntVar(&creation.StartYear, "year", time.Now().Year(), "In-game start year")
	cmd.Flags().StringVar(&creation.Difficulty, "difficulty", "normal", "Difficulty label")
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "CEO attribute as key=value (tech, creativity, marketing, networking, management, luck)")
	cmd.Flags().StringArrayVar(&talents, "talent", nil, "CEO talent as name or name:description")
	cmd.Flags().BoolVar(&noOpening, "no-opening", false, "Create the save without generating the opening")
	cmd.Flags().BoolVar(&showRaw, "raw", false, "Stream the raw game master output")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("founder")
	return cmd
}

func newPlayCommand(flags *globalFlags) *cobra.Command {
	var showRaw bool

	cmd := &cobra.Command{
		Use:   "play [save-id]",
		Short: "Continue a save interactively (latest save by default)",
		Example: strings.Join([]string{
			"  studiogm play",
			"  studiogm play save_1a2b3c",
		}, "\n"),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			gs, err := rt.resolveSave(ctx, args)
			if err != nil {
				return err
			}
			events := bus.New(0)
			defer events.Close()
			eng, idx, err := rt.engine(ctx, gs, gm.WithEvents(events))
			if err != nil {
				return err
			}
			defer idx.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s, %s (Ctrl+C cancels a turn, exit quits)\n", gs.CompanyName(), gs.TimeLabel())
			s := newSession(out, eng, rt.persist)
			s.showRaw = showRaw
			s.events = events
			return s.run(ctx, newLineReader(out, gs.CompanyName()))
		},
	}
	cmd.Flags().BoolVar(&showRaw, "raw", false, "Stream the raw game master output")
	return cmd
}

func newStatusCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "status [save-id]",
		Short:   "Show configuration, provider readiness and the company status",
		Example: "  studiogm status",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, flags, args)
		},
	}
}

func runStatus(cmd *cobra.Command, flags *globalFlags, args []string) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "✗"
	}
	exists := func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}

	fmt.Fprintf(out, "%s Status\n", appName)
	fmt.Fprintf(out, "Version: %s\n\n", formatVersion())
	fmt.Fprintln(out, "Config:", flags.path(), mark(exists(flags.path())))
	fmt.Fprintln(out, "Workspace:", cfg.WorkspacePath(), mark(exists(cfg.WorkspacePath())))
	fmt.Fprintln(out, "Model:", cfg.GM.Model)

	provider, configured, mode, err := providers.ProviderCredentialStatus(cfg)
	if err != nil {
		fmt.Fprintf(out, "Provider: %s ✗ (%v)\n", cfg.GM.Provider, err)
	} else {
		line := fmt.Sprintf("Provider: %s %s", provider, mark(configured))
		if mode != "" {
			line += " (" + mode + ")"
		}
		fmt.Fprintln(out, line)
	}
	summary := providers.SummaryStatus(cfg)
	if summary.Configured {
		fmt.Fprintf(out, "Summary endpoint: %s (%s)\n", mark(true), summary.Model)
	} else {
		fmt.Fprintln(out, "Summary endpoint:", mark(false), "(local digest)")
	}
	fmt.Fprintln(out, "Embedding endpoint:", mark(cfg.EmbeddingEnabled()))

	if !exists(cfg.SavesDBPath()) {
		fmt.Fprintln(out, "Saves:", cfg.SavesDBPath(), "not initialized")
		return nil
	}
	rt, err := openRuntime(flags)
	if err != nil {
		return err
	}
	defer rt.Close()

	gs, err := rt.resolveSave(cmd.Context(), args)
	if err != nil {
		fmt.Fprintln(out, "Saves:", err)
		return nil
	}
	fmt.Fprintf(out, "\nSave: %s (%s)\n", gs.SaveID(), gs.SaveName())
	fmt.Fprintln(out, rt.prompts.StateSummary(gs))
	return nil
}

func newSavesCommand(flags *globalFlags) *cobra.Command {
	savesRoot := &cobra.Command{
		Use:   "saves",
		Short: "List and delete saves",
	}

	savesRoot.AddCommand(&cobra.Command{
		Use:     "list",
		Short:   "List saves, most recent first",
		Example: "  studiogm saves list",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			list, err := rt.saves.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No saves.")
				return nil
			}
			for _, s := range list {
				fmt.Fprintf(out, "  %s  %-24s  %-10s  %s\n", s.ID, s.Company, s.GameTime, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	})

	savesRoot.AddCommand(&cobra.Command{
		Use:     "delete <save-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a save and its memory index",
		Example: "  studiogm saves delete save_1a2b3c",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			id := strings.TrimSpace(args[0])
			if err := rt.saves.Delete(ctx, id); err != nil {
				return err
			}
			if idx, err := rt.index(id); err == nil {
				_ = idx.Clear(ctx)
				_ = idx.Close()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", id)
			return nil
		},
	})
	return savesRoot
}

func newMemoryCommand(flags *globalFlags) *cobra.Command {
	var saveID string

	memRoot := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and maintain the memory index of a save",
	}
	memRoot.PersistentFlags().StringVarP(&saveID, "save", "s", "", "Save id (default: latest save)")

	withIndex := func(cmd *cobra.Command, fn func(ctx context.Context, rt *appRuntime, gs *gamestate.GameState, idx *memory.Index) error) error {
		rt, err := openRuntime(flags)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cmd.Context()
		gs, err := rt.resolveSave(ctx, []string{saveID})
		if err != nil {
			return err
		}
		idx, err := rt.index(gs.SaveID())
		if err != nil {
			return err
		}
		defer idx.Close()
		return fn(ctx, rt, gs, idx)
	}

	memRoot.AddCommand(&cobra.Command{
		Use:     "stats",
		Short:   "Show index size by category, tag and vector type",
		Example: "  studiogm memory stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndex(cmd, func(ctx context.Context, rt *appRuntime, gs *gamestate.GameState, idx *memory.Index) error {
				st, err := idx.Stats(ctx)
				if err != nil {
					return err
				}
				printStats(cmd, gs, st)
				return nil
			})
		},
	})

	memRoot.AddCommand(&cobra.Command{
		Use:     "search <query>",
		Short:   "Run a retrieval query against the index",
		Example: "  studiogm memory search \"first game launch\"",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndex(cmd, func(ctx context.Context, rt *appRuntime, gs *gamestate.GameState, idx *memory.Index) error {
				results, err := idx.Search(ctx, strings.Join(args, " "), &memory.SearchContext{RecentEvents: recentShortTerm(gs)})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintln(out, "No matching memories.")
					return nil
				}
				for _, r := range results {
					fmt.Fprintf(out, "  %.3f  %s  [%s]  %s\n", r.Score, r.Entry.ID, r.Entry.Category, r.Entry.Content)
				}
				return nil
			})
		},
	})

	rebuild := &cobra.Command{
		Use:     "rebuild",
		Short:   "Re-index the save's long-term and mid-term memories",
		Example: "  studiogm memory rebuild",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndex(cmd, func(ctx context.Context, rt *appRuntime, gs *gamestate.GameState, idx *memory.Index) error {
				out := cmd.OutOrStdout()
				mems := append(append([]string{}, gs.Memory.LongTerm...), gs.Memory.MidTerm...)
				res, err := idx.Rebuild(ctx, mems, memory.RebuildOptions{
					OnProgress: func(done, total int) {
						fmt.Fprintf(out, "\r  %d/%d", done, total)
					},
				})
				fmt.Fprintln(out)
				if err != nil {
					return err
				}
				model := res.EmbeddingModel
				if model == "" {
					model = "local"
				}
				fmt.Fprintf(out, "✓ Indexed %d memories (%s, %s)\n", res.Imported, res.VectorType, model)
				return nil
			})
		},
	}
	memRoot.AddCommand(rebuild)

	memRoot.AddCommand(&cobra.Command{
		Use:     "delete <memory-id>",
		Aliases: []string{"rm"},
		Short:   "Delete one memory from the index",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndex(cmd, func(ctx context.Context, rt *appRuntime, gs *gamestate.GameState, idx *memory.Index) error {
				if err := idx.Delete(ctx, args[0]); err != nil {
					if errors.Is(err, memory.ErrNotFound) {
						return fmt.Errorf("memory %s not found in %s", args[0], gs.SaveID())
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", args[0])
				return nil
			})
		},
	})

	memRoot.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every memory of the save from the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIndex(cmd, func(ctx context.Context, rt *appRuntime, gs *gamestate.GameState, idx *memory.Index) error {
				if err := idx.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared memory index of %s\n", gs.SaveID())
				return nil
			})
		},
	})
	return memRoot
}

func printStats(cmd *cobra.Command, gs *gamestate.GameState, st memory.Stats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Save: %s\n", gs.SaveID())
	fmt.Fprintf(out, "Total: %d\n", st.Total)
	for _, c := range sortedKeys(st.ByCategory) {
		fmt.Fprintf(out, "  %-12s %d\n", c, st.ByCategory[c])
	}
	for _, vt := range sortedKeys(st.ByVectorType) {
		fmt.Fprintf(out, "  vectors/%-6s %d\n", vt, st.ByVectorType[vt])
	}
	if len(st.TopTags) > 0 {
		tags := make([]string, 0, len(st.TopTags))
		for _, t := range st.TopTags {
			tags = append(tags, fmt.Sprintf("%s(%d)", t.Tag, t.Count))
		}
		fmt.Fprintf(out, "Top tags: %s\n", strings.Join(tags, ", "))
	}
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  studiogm version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}

// parseAttributes reads key=value pairs into CEO attributes.
func parseAttributes(pairs []string) (gamestate.Attributes, error) {
	var a gamestate.Attributes
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok {
			return a, fmt.Errorf("attribute %q: expected key=value", p)
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			return a, fmt.Errorf("attribute %q: value must be a non-negative integer", p)
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "tech":
			a.Tech = n
		case "creativity":
			a.Creativity = n
		case "marketing":
			a.Marketing = n
		case "networking":
			a.Networking = n
		case "management":
			a.Management = n
		case "luck":
			a.Luck = n
		default:
			return a, fmt.Errorf("unknown attribute %q", key)
		}
	}
	return a, nil
}

func parseTalents(items []string) []gamestate.Talent {
	out := make([]gamestate.Talent, 0, len(items))
	for _, it := range items {
		name, desc, _ := strings.Cut(it, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, gamestate.Talent{Name: name, Description: strings.TrimSpace(desc)})
	}
	return out
}

func recentShortTerm(gs *gamestate.GameState) []string {
	st := gs.Memory.ShortTerm
	if len(st) > 3 {
		st = st[len(st)-3:]
	}
	return st
}
