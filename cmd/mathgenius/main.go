package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/mathgenius/internal/export"
	"github.com/pavelanni/mathgenius/internal/handler"
	appI18n "github.com/pavelanni/mathgenius/internal/i18n"
	"github.com/pavelanni/mathgenius/internal/input"
	"github.com/pavelanni/mathgenius/internal/llm"
	"github.com/pavelanni/mathgenius/internal/model"
	"github.com/pavelanni/mathgenius/internal/store"
)

const defaultSecret = "mathgenius"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mathgenius",
		Short: "Generate new math exams from a sample exam with Gemini",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), keyCmd(), modelsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `mathgenius --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local web UI",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", "127.0.0.1:8080", "HTTP listen address")
	f.StringP("lang", "l", "vi", "UI language (vi, en)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /mathgenius)")
	f.StringSlice("allowed-origins", nil, "CORS allowed origins (empty disables CORS)")
	f.Bool("auto-print", true, "HTML exports open the print dialog")
	addStoreFlags(cmd)
	addLLMFlags(cmd)
	addExportFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <file>",
		Short: "Generate a new exam from a PDF or image and write the exports",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringP("output", "o", ".", "Output directory")
	f.StringSliceP("format", "f", []string{"md", "pdf"}, "Export formats (html, docx, pdf, md)")
	f.String("view", string(model.ViewSolution), "Exported view (analysis, exam, solution)")
	f.StringP("model", "m", "", "Preferred model, tried first")
	f.String("diagram-mode", string(model.DiagramStandard), "Diagram mode (standard, detailed)")
	f.String("solution-mode", string(model.SolutionDetailed), "Solution mode (concise, detailed, very_detailed)")
	addStoreFlags(cmd)
	addLLMFlags(cmd)
	addExportFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored API key",
	}
	set := &cobra.Command{
		Use:   "set <api-key>",
		Short: "Store the API key (sealed) in the local database",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(_ *cobra.Command, s *store.Store, args []string) error {
			if strings.TrimSpace(args[0]) == "" {
				return errors.New("api key must not be blank")
			}
			if err := s.SetCredential(args[0]); err != nil {
				return err
			}
			fmt.Println("stored", store.Mask(strings.TrimSpace(args[0])))
			return nil
		}),
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the active API key (masked) and where it comes from",
		RunE: withStore(func(cmd *cobra.Command, s *store.Store, _ []string) error {
			creds := store.ChainProvider{Store: s, Fallback: envCredential(viperForCmd(cmd))}
			key, err := creds.Credential(cmd.Context())
			if err != nil {
				return err
			}
			if key == "" {
				fmt.Println("no API key configured")
				return nil
			}
			fmt.Printf("%s (%s)\n", store.Mask(key), creds.Source(cmd.Context()))
			return nil
		}),
	}
	clearKey := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		RunE: withStore(func(_ *cobra.Command, s *store.Store, _ []string) error {
			return s.ClearCredential()
		}),
	}
	for _, c := range []*cobra.Command{set, show, clearKey} {
		addStoreFlags(c)
		addLogFlags(c)
		cmd.AddCommand(c)
	}
	show.Flags().String("api-key", "", "API key fallback (or set MATHGENIUS_API_KEY / GEMINI_API_KEY)")
	return cmd
}

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List candidate models, or select the preferred one with --select",
		RunE: withStore(func(cmd *cobra.Command, s *store.Store, _ []string) error {
			v := viperForCmd(cmd)
			candidates, err := candidatesFromConfig(v)
			if err != nil {
				return err
			}
			if sel := strings.TrimSpace(v.GetString("select")); sel != "" {
				if _, err := model.ParseCandidate(sel); err != nil {
					return err
				}
				if err := s.SetSelectedModel(sel); err != nil {
					return err
				}
			}
			selected, err := s.SelectedModel()
			if err != nil {
				return err
			}
			for _, c := range model.WithPreferred(candidates, selected) {
				mark := " "
				if selected != "" && (c.Name == selected || c.String() == selected) {
					mark = "*"
				}
				fmt.Printf("%s %-32s %s\n", mark, c.String(), c.Label)
			}
			return nil
		}),
	}
	cmd.Flags().String("select", "", "Store the preferred model")
	cmd.Flags().StringSlice("models", nil, "Ordered candidate models, provider:name (default: built-in list)")
	addStoreFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "mathgenius.db", "SQLite database path")
	f.String("secret", "", "Secret that seals the stored API key (or set MATHGENIUS_SECRET)")
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("api-key", "", "API key fallback (or set MATHGENIUS_API_KEY / GEMINI_API_KEY)")
	f.StringSlice("models", nil, "Ordered candidate models, provider:name (default: built-in list)")
	f.String("shape", string(model.ShapeTwoPhase), "Output shape (two_phase, two_variant)")
	f.String("gemini-url", "", "Gemini API base URL override")
	f.String("openai-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
}

func addExportFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("font", "", "TTF font for PDF export (Vietnamese text is folded to ASCII without one)")
	f.String("bold-font", "", "Bold TTF font for PDF export")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	// A missing .env file is fine.
	_ = godotenv.Load()

	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("MATHGENIUS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mathgenius")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/mathgenius")
	v.AddConfigPath("/etc/mathgenius")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// envCredential is the configured key, falling back to the variables the
// Gemini tooling uses.
func envCredential(v *viper.Viper) string {
	if k := strings.TrimSpace(v.GetString("api-key")); k != "" {
		return k
	}
	for _, name := range []string{"GEMINI_API_KEY", "API_KEY"} {
		if k := strings.TrimSpace(os.Getenv(name)); k != "" {
			return k
		}
	}
	return ""
}

func openStore(v *viper.Viper) (*store.Store, error) {
	secret := v.GetString("secret")
	if secret == "" {
		slog.Warn("no --secret set, the stored API key is sealed with the built-in default")
		secret = defaultSecret
	}
	s, err := store.New(v.GetString("db"), secret)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

func withStore(run func(cmd *cobra.Command, s *store.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		setupLogging(cmd)
		s, err := openStore(viperForCmd(cmd))
		if err != nil {
			return err
		}
		defer s.Close()
		return run(cmd, s, args)
	}
}

func candidatesFromConfig(v *viper.Viper) ([]model.Candidate, error) {
	specs := v.GetStringSlice("models")
	if len(specs) == 0 {
		return model.DefaultCandidates(), nil
	}
	c, err := model.ParseCandidates(specs)
	if err != nil {
		return nil, fmt.Errorf("parse --models: %w", err)
	}
	return c, nil
}

func newOrchestrator(v *viper.Viper) (*llm.Orchestrator, error) {
	candidates, err := candidatesFromConfig(v)
	if err != nil {
		return nil, err
	}
	router := llm.Router{
		model.ProviderGemini: llm.NewGemini(v.GetString("gemini-url")),
		model.ProviderOpenAI: llm.NewOpenAI(v.GetString("openai-url")),
	}
	o, err := llm.New(router,
		llm.WithCandidates(candidates),
		llm.WithShape(model.Shape(strings.ToLower(strings.TrimSpace(v.GetString("shape"))))),
	)
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}
	return o, nil
}

func pdfOptions(v *viper.Viper) export.PDFOptions {
	return export.PDFOptions{FontPath: v.GetString("font"), BoldFontPath: v.GetString("bold-font")}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := appI18n.Match(v.GetString("lang"))
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	orch, err := newOrchestrator(v)
	if err != nil {
		return err
	}

	h, err := handler.New(orch, db,
		store.ChainProvider{Store: db, Fallback: envCredential(v)},
		export.Exporter{PDF: pdfOptions(v), AutoPrint: v.GetBool("auto-print")},
		handler.Config{
			Lang:           lang,
			AllowedOrigins: v.GetStringSlice("allowed-origins"),
		},
	)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"shape", orch.Shape(),
		"models", len(orch.Candidates()),
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, h.Router(basePath))
}

func runGenerate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	formats := make([]model.Format, 0)
	for _, s := range v.GetStringSlice("format") {
		f, err := model.ParseFormat(strings.ToLower(strings.TrimSpace(s)))
		if err != nil {
			return err
		}
		formats = append(formats, f)
	}
	view := model.View(v.GetString("view"))
	if !view.Valid() {
		return fmt.Errorf("unknown view %q", view)
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	doc, info, err := input.Read(file, args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	slog.Info("input accepted", "file", doc.DisplayName, "mime", doc.MIMEType, "pages", info.Pages, "bytes", info.Size)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	orch, err := newOrchestrator(v)
	if err != nil {
		return err
	}
	preferred := v.GetString("model")
	if preferred == "" {
		if preferred, err = db.SelectedModel(); err != nil {
			return err
		}
	}
	orch = orch.UsingCandidates(model.WithPreferred(orch.Candidates(), preferred))

	creds := store.ChainProvider{Store: db, Fallback: envCredential(v)}
	credential, err := creds.Credential(cmd.Context())
	if err != nil {
		return err
	}

	opts := model.GenerationOptions{
		DiagramMode:  model.DiagramMode(v.GetString("diagram-mode")),
		SolutionMode: model.SolutionMode(v.GetString("solution-mode")),
	}
	ctx := model.ContextWithRequestID(cmd.Context(), "cli")
	content, err := orch.Generate(ctx, doc, credential, opts)
	if err != nil {
		return err
	}

	outDir := v.GetString("output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	ex := export.Exporter{PDF: pdfOptions(v)}
	req := model.ExportRequest{Content: *content, View: view, Name: doc.DisplayName}
	for _, f := range formats {
		out, err := ex.Export(ctx, req, f)
		if err != nil {
			return fmt.Errorf("export %s: %w", f, err)
		}
		path := filepath.Join(outDir, out.Name)
		if err := os.WriteFile(path, out.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Println(path)
	}
	slog.Info("generation complete", "model", content.Model, "formats", len(formats))
	return nil
}
