package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/structured-notes/notes-go/internal/node"
	"github.com/structured-notes/notes-go/internal/tagindex"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List your nodes as a tree",
		Long: `Fetch every node you own and print them as a tree. Use --shared to list
the nodes other users shared with you, and --tag to keep only nodes carrying
a tag.`,
		Args: cobra.NoArgs,
		RunE: runLs,
	}

	cmd.Flags().Bool("shared", false, "list nodes shared with you")
	cmd.Flags().String("tag", "", "only nodes carrying this tag")
	cmd.Flags().Bool("flat", false, "print a table instead of a tree")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>...",
		Short: "Fetch full node details, permissions included",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runGet,
	}
}

func newTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List every tag used across your nodes",
		Args:  cobra.NoArgs,
		RunE:  runTags,
	}
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload files as media nodes",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runUpload,
	}
}

func newPublicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "public <id>",
		Short: "Fetch a published node without signing in",
		Args:  cobra.ExactArgs(1),
		RunE:  runPublic,
	}
}

func runLs(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	shared, _ := cmd.Flags().GetBool("shared")
	tag, _ := cmd.Flags().GetString("tag")
	flat, _ := cmd.Flags().GetBool("flat")

	return withApp(ctx, func(cc *CLIContext, app *App) error {
		if err := app.requireLogin(ctx); err != nil {
			return err
		}

		var nodes []node.Node

		if shared {
			listed, err := app.Cache.FetchShared(ctx)
			if err != nil {
				return fmt.Errorf("listing shared nodes: %w", err)
			}

			nodes = listed
		} else {
			if _, err := app.Cache.FetchAll(ctx); err != nil {
				return fmt.Errorf("listing nodes: %w", err)
			}

			nodes = app.Cache.Nodes().Values()
		}

		if tag != "" {
			nodes = filterByTag(nodes, tag)
		}

		w := cmd.OutOrStdout()

		switch {
		case cc.Structured():
			return printStructured(w, cc.Flags.Format, nodes)
		case len(nodes) == 0:
			cc.Statusf("No nodes.\n")
		case flat:
			printNodeTable(w, nodes)
		default:
			printTree(w, nodes)
		}

		return nil
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	return withApp(ctx, func(cc *CLIContext, app *App) error {
		if err := app.requireLogin(ctx); err != nil {
			return err
		}

		nodes, err := app.Cache.FetchMany(ctx, args)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if cc.Structured() {
			if len(nodes) == 1 {
				return printStructured(w, cc.Flags.Format, nodes[0])
			}

			return printStructured(w, cc.Flags.Format, nodes)
		}

		for i := range nodes {
			if i > 0 {
				fmt.Fprintln(w)
			}

			printNodeDetail(w, &nodes[i])
		}

		return nil
	})
}

func runTags(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	return withApp(ctx, func(cc *CLIContext, app *App) error {
		if err := app.requireLogin(ctx); err != nil {
			return err
		}

		if _, err := app.Cache.FetchAll(ctx); err != nil {
			return fmt.Errorf("listing nodes: %w", err)
		}

		tags := app.Cache.Tags()

		w := cmd.OutOrStdout()
		if cc.Structured() {
			return printStructured(w, cc.Flags.Format, tags)
		}

		for _, tag := range tags {
			fmt.Fprintln(w, tag)
		}

		return nil
	})
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	return withApp(ctx, func(cc *CLIContext, app *App) error {
		if err := app.requireLogin(ctx); err != nil {
			return err
		}

		uploaded := make([]node.Node, 0, len(args))

		for _, path := range args {
			n, err := app.Media.Upload(ctx, path)
			if err != nil {
				return fmt.Errorf("uploading %s: %w", path, err)
			}

			cc.Statusf("Uploaded %s as %s (%s)\n", path, n.ID, formatSize(n.Size))
			uploaded = append(uploaded, n)
		}

		if cc.Structured() {
			return printStructured(cmd.OutOrStdout(), cc.Flags.Format, uploaded)
		}

		return nil
	})
}

func runPublic(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	return withApp(ctx, func(cc *CLIContext, app *App) error {
		n, err := app.Cache.FetchPublic(ctx, args[0])
		if err != nil {
			return fmt.Errorf("fetching public node %s: %w", args[0], err)
		}

		w := cmd.OutOrStdout()
		if cc.Structured() {
			return printStructured(w, cc.Flags.Format, n)
		}

		printNodeDetail(w, &n)

		if n.Content != "" {
			fmt.Fprintln(w)
			fmt.Fprintln(w, n.Content)
		}

		return nil
	})
}

func filterByTag(nodes []node.Node, tag string) []node.Node {
	var out []node.Node

	for _, n := range nodes {
		if tagindex.Has(n.Tags, tag) {
			out = append(out, n)
		}
	}

	return out
}

// printTree prints nodes indented under their parents, in list order. A
// node whose parent is not in nodes is printed at the top level.
func printTree(w io.Writer, nodes []node.Node) {
	present := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		present[n.ID] = true
	}

	children := make(map[string][]node.Node)

	var roots []node.Node

	for _, n := range nodes {
		if n.ParentID == "" || !present[n.ParentID] {
			roots = append(roots, n)

			continue
		}

		children[n.ParentID] = append(children[n.ParentID], n)
	}

	var walk func(n node.Node, depth int)

	walk = func(n node.Node, depth int) {
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), treeLabel(&n))

		for _, c := range children[n.ID] {
			walk(c, depth+1)
		}
	}

	for _, r := range roots {
		walk(r, 0)
	}
}

func treeLabel(n *node.Node) string {
	var b strings.Builder

	b.WriteString(n.Name)

	if n.IsMedia() {
		fmt.Fprintf(&b, " (%s)", formatSize(n.Size))
	}

	if tags := tagindex.Split(n.Tags); len(tags) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(tags, ", "))
	}

	if n.Shared {
		b.WriteString(" *shared*")
	}

	return b.String()
}

func printNodeTable(w io.Writer, nodes []node.Node) {
	now := time.Now()
	rows := make([][]string, 0, len(nodes))

	for _, n := range nodes {
		parent := n.ParentID
		if parent == "" {
			parent = "-"
		}

		rows = append(rows, []string{n.ID, parent, n.Name, strings.Join(tagindex.Split(n.Tags), ","), formatTime(n.UpdatedAt, now)})
	}

	printTable(w, []string{"ID", "PARENT", "NAME", "TAGS", "UPDATED"}, rows)
}

func printNodeDetail(w io.Writer, n *node.Node) {
	now := time.Now()

	parent := n.ParentID
	if parent == "" {
		parent = "(root)"
	}

	fmt.Fprintf(w, "ID:       %s\n", n.ID)
	fmt.Fprintf(w, "Name:     %s\n", n.Name)
	fmt.Fprintf(w, "Parent:   %s\n", parent)

	if n.Description != "" {
		fmt.Fprintf(w, "About:    %s\n", n.Description)
	}

	if tags := tagindex.Split(n.Tags); len(tags) > 0 {
		fmt.Fprintf(w, "Tags:     %s\n", strings.Join(tags, ", "))
	}

	if n.IsMedia() {
		fmt.Fprintf(w, "Size:     %s\n", formatSize(n.Size))
	}

	fmt.Fprintf(w, "Created:  %s\n", formatTime(n.CreatedAt, now))
	fmt.Fprintf(w, "Updated:  %s\n", formatTime(n.UpdatedAt, now))

	if len(n.Permissions) == 0 {
		return
	}

	fmt.Fprintln(w, "Permissions:")

	for _, p := range n.Permissions {
		fmt.Fprintf(w, "  user %s: %s\n", p.UserID, p.Level)
	}
}
