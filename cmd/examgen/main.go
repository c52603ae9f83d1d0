package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/examgen/internal/exam"
	"github.com/pavelanni/examgen/internal/export"
	"github.com/pavelanni/examgen/internal/handler"
	appI18n "github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/material"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examgen",
		Short: "Exam question generator for Indonesian schools powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), exportCmd(), listCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examgen --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-provider", llm.ProviderGemini, "LLM provider (gemini, openai)")
	f.String("llm-url", "", "API base URL (empty for the provider default)")
	f.String("llm-key", "", "API key for the LLM (or set EXAMGEN_LLM_KEY)")
	f.String("llm-model", "", "Model for question generation (empty for the provider default)")
	f.String("image-model", "", "Model for image generation and editing (empty for the provider default)")
	f.StringP("lang", "l", "id", "UI and prompt language (id, en)")
	f.Duration("timeout", 3*time.Minute, "Time limit for a single model call")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web exam generator",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examgen.db", "SQLite database path")
	addLLMFlags(f)
	f.Bool("ping", true, "Check the LLM endpoint before serving")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /soal)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	addLogFlags(f)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an exam from a material file and write it in one export format",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringP("subject", "s", "", "Subject, e.g. \"Biologi - Sel Hewan\" (required)")
	f.StringP("material", "m", "", "Material file: PDF or plain text, - for stdin (required)")
	f.String("grade", model.DefaultGradeLevel, "Grade level, e.g. \"Kelas 8 SMP\"")
	f.IntP("count", "n", model.DefaultCount, "Number of questions (1-50)")
	f.StringP("difficulty", "d", string(model.DifficultyMedium), "Difficulty (easy, medium, hard)")
	f.StringP("type", "t", string(model.ExamMCQ), "Exam type (mcq, true_false, essay, ...)")
	f.StringSlice("bloom", []string{"C1", "C2", "C3"}, "Bloom levels C1-C6")
	f.Bool("images", false, "Ask for image descriptions and generate the images")
	f.String("cp", "", "Capaian Pembelajaran (learning outcomes)")
	f.String("tp", "", "Tujuan Pembelajaran (learning objectives)")
	f.StringP("format", "f", string(export.FormatText), "Output format (txt, doc, html, gas, json)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("db", "", "Also store the exam in this SQLite database")
	addLLMFlags(f)
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("material")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored exams",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examgen.db", "SQLite database path")
	f.String("exam-id", "", "Exam to export")
	f.Bool("all", false, "Export every stored exam as one JSON array")
	f.StringP("format", "f", string(export.FormatJSON), "Output format (txt, doc, html, gas, json)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.StringP("lang", "l", "id", "Language of labels and instructions (id, en)")
	addLogFlags(f)

	cmd.MarkFlagsOneRequired("exam-id", "all")
	cmd.MarkFlagsMutuallyExclusive("exam-id", "all")
	return cmd
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored exams, newest first",
		RunE:  runList,
	}
	f := cmd.Flags()
	f.String("db", "examgen.db", "SQLite database path")
	f.StringP("lang", "l", "id", "Language of labels (id, en)")
	addLogFlags(f)
	return cmd
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
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm-key", "EXAMGEN_LLM_KEY", "API_KEY")

	v.SetConfigName("examgen")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examgen")
	v.AddConfigPath("/etc/examgen")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// localized initializes i18n and returns a context carrying the localizer.
func localized(ctx context.Context, lang string) (context.Context, error) {
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	return appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang)), nil
}

// newGenerator creates the configured LLM backend. The returned func releases
// it and is safe to defer.
func newGenerator(ctx context.Context, v *viper.Viper) (llm.Generator, model.GeneratorInfo, func(), error) {
	cfg := llm.Config{
		Provider:   strings.ToLower(v.GetString("llm-provider")),
		BaseURL:    v.GetString("llm-url"),
		APIKey:     v.GetString("llm-key"),
		Model:      v.GetString("llm-model"),
		ImageModel: v.GetString("image-model"),
		Lang:       v.GetString("lang"),
	}
	gen, err := llm.New(ctx, cfg)
	if err != nil {
		return nil, model.GeneratorInfo{}, func() {}, fmt.Errorf("create LLM client: %w", err)
	}
	release := func() {
		if c, ok := gen.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Warn("close LLM client", "error", err)
			}
		}
	}
	info := model.GeneratorInfo{
		Provider:   cmp.Or(cfg.Provider, llm.ProviderGemini),
		Model:      cfg.Model,
		ImageModel: cfg.ImageModel,
	}
	if info.Provider == llm.ProviderOpenAI {
		info.Model = cmp.Or(info.Model, llm.DefaultOpenAIModel)
		info.ImageModel = cmp.Or(info.ImageModel, llm.DefaultOpenAIImageModel)
	} else {
		info.Model = cmp.Or(info.Model, llm.DefaultGeminiModel)
		info.ImageModel = cmp.Or(info.ImageModel, llm.DefaultGeminiImageModel)
	}
	return gen, info, release, nil
}

// openOutput returns stdout for "" or "-", otherwise a new file.
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f.Close, nil
}

func writeExport(exp export.Exporter, doc export.Document, path string) error {
	w, closeOut, err := openOutput(path)
	if err != nil {
		return err
	}
	if err := exp.Write(w, doc); err != nil {
		_ = closeOut()
		return fmt.Errorf("export %s: %w", exp.Format, err)
	}
	return closeOut()
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	gen, info, release, err := newGenerator(ctx, v)
	if err != nil {
		return err
	}
	defer release()
	if v.GetBool("ping") {
		if err := gen.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "provider", info.Provider, "model", info.Model)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h, err := handler.New(db, gen, handler.Config{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		Timeout:       v.GetDuration("timeout"),
		Generator:     info,
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang, basePath))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("starting server",
		"addr", addr,
		"provider", info.Provider,
		"model", info.Model,
		"image_model", info.ImageModel,
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"base_path", basePath,
		"timeout", v.GetDuration("timeout"),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// readMaterial loads a material file, or stdin for "-".
func readMaterial(path string, stdin io.Reader) (material.Upload, error) {
	var (
		data []byte
		err  error
	)
	name := filepath.Base(path)
	if path == "-" {
		name = "stdin.txt"
		data, err = io.ReadAll(io.LimitReader(stdin, material.MaxUploadBytes+1))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return material.Upload{}, fmt.Errorf("read material: %w", err)
	}
	return material.Load(name, mime.TypeByExtension(filepath.Ext(name)), data)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, err := localized(cmd.Context(), v.GetString("lang"))
	if err != nil {
		return err
	}

	exp, err := export.Lookup(v.GetString("format"))
	if err != nil {
		return err
	}

	cfg := model.DefaultExamConfig()
	cfg.Subject = strings.TrimSpace(v.GetString("subject"))
	cfg.GradeLevel = v.GetString("grade")
	cfg.Count = v.GetInt("count")
	cfg.Difficulty = model.Difficulty(strings.ToLower(v.GetString("difficulty")))
	cfg.ExamType = model.ExamType(strings.ToLower(v.GetString("type")))
	cfg.BloomLevels = lo.Map(v.GetStringSlice("bloom"), func(s string, _ int) model.BloomLevel {
		return model.BloomLevel(strings.ToUpper(strings.TrimSpace(s)))
	})
	cfg.IncludeImages = v.GetBool("images")
	cfg.CP = v.GetString("cp")
	cfg.TP = v.GetString("tp")

	u, err := readMaterial(v.GetString("material"), cmd.InOrStdin())
	if err != nil {
		return err
	}
	material.Apply(&cfg, u)

	if err := exam.Validate(cfg); err != nil {
		var verr *exam.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", err, appI18n.T(ctx, verr.Key))
		}
		return err
	}

	gen, info, release, err := newGenerator(ctx, v)
	if err != nil {
		return err
	}
	defer release()

	callCtx, cancel := llm.CallContext(ctx, v.GetDuration("timeout"))
	defer cancel()
	start := time.Now()
	questions, err := gen.GenerateQuestions(callCtx, cfg)
	if err != nil {
		return fmt.Errorf("exam %q: %w", cfg.Subject, err)
	}
	slog.Info("generated questions", "subject", cfg.Subject, "count", len(questions), "duration", time.Since(start))

	if cfg.IncludeImages {
		questions = generateImages(ctx, gen, questions, v.GetDuration("timeout"))
	}

	e := model.Exam{Config: cfg, Questions: questions}
	if path := v.GetString("db"); path != "" {
		db, err := store.New(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if e, err = db.CreateExam(e); err != nil {
			return fmt.Errorf("store exam: %w", err)
		}
		info.UsedAt = time.Now().UTC()
		if err := db.SetGeneratorInfo(info); err != nil {
			slog.Warn("failed to record generator info", "error", err)
		}
		slog.Info("stored exam", "id", e.ID, "db", path)
	}

	return writeExport(exp, export.NewDocument(ctx, e), v.GetString("output"))
}

// generateImages fills in images for questions that describe one. A failed
// image leaves the question without one.
func generateImages(ctx context.Context, gen llm.Generator, questions []model.Question, timeout time.Duration) []model.Question {
	for i, q := range questions {
		if q.ImageDescription == "" {
			continue
		}
		callCtx, cancel := llm.CallContext(ctx, timeout)
		url, err := gen.GenerateImage(callCtx, q.ImageDescription)
		cancel()
		if err != nil {
			slog.Warn("image generation failed", "question", q.ID, "error", err)
			continue
		}
		questions[i].ImageURL = url
	}
	return questions
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, err := localized(cmd.Context(), v.GetString("lang"))
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if v.GetBool("all") {
		exams, err := db.ExportAllExams()
		if err != nil {
			return fmt.Errorf("export exams: %w", err)
		}
		docs := lo.Map(exams, func(e model.Exam, _ int) export.Document {
			return export.NewDocument(ctx, e)
		})
		w, closeOut, err := openOutput(v.GetString("output"))
		if err != nil {
			return err
		}
		if err := export.JSONAll(w, docs); err != nil {
			_ = closeOut()
			return fmt.Errorf("write output: %w", err)
		}
		return closeOut()
	}

	exp, err := export.Lookup(v.GetString("format"))
	if err != nil {
		return err
	}
	e, err := db.GetExam(v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("load exam %s: %w", v.GetString("exam-id"), err)
	}
	return writeExport(exp, export.NewDocument(ctx, e), v.GetString("output"))
}

func runList(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, err := localized(cmd.Context(), v.GetString("lang"))
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	exams, err := db.ListExams(0)
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}
	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSUBJECT\tGRADE\tTYPE\tQUESTIONS")
	for _, e := range exams {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Subject, e.GradeLevel,
			appI18n.ExamTypeLabel(ctx, e.ExamType), e.NumQuestions)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	total, err := db.ExamCount()
	if err != nil {
		return fmt.Errorf("count exams: %w", err)
	}
	fmt.Fprintf(out, "\n%s\n", appI18n.Tp(ctx, "ExamsStored", total))

	info, err := db.GetGeneratorInfo()
	if err != nil {
		return fmt.Errorf("read generator info: %w", err)
	}
	if info.Provider != "" {
		fmt.Fprintf(out, "\nlast generator: %s (model %s, image model %s) at %s\n",
			info.Provider, info.Model, info.ImageModel, info.UsedAt.Local().Format(time.RFC3339))
	}
	return nil
}
