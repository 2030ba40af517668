// Package cli 是 persona 命令行：serve 启动服务，其余子命令对当前配置的后端做一次性操作。
package cli

import (
	"context"
	"io"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/rushteam/persona/app"
	"github.com/rushteam/persona/config"
	"github.com/rushteam/persona/pkg/logging"
)

// Error 带退出码的错误
type Error struct {
	Code    int
	Message string
}

// Run 解析参数并执行子命令
func Run(ctx context.Context, argv []string) *Error {
	if err := rootCommand().Run(ctx, argv); err != nil {
		return &Error{Code: 1, Message: err.Error()}
	}
	return nil
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:  "persona",
		Usage: "User interest embeddings and personalized article ranking",
		Commands: []*cli.Command{
			serveCommand(),
			aggregateCommand(),
			similarCommand(),
			recommendCommand(),
			searchCommand(),
			ingestCommand(),
		},
	}
}

// globalConfig 是各子命令共用的参数
type globalConfig struct {
	path     string
	logLevel string
}

func globalFlags(cfg *globalConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML config file",
			Sources:     cli.EnvVars("PERSONA_CONFIG"),
			Destination: &cfg.path,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Override log level (trace, debug, info, warn, error)",
			Destination: &cfg.logLevel,
		},
	}
}

// load 读取配置并初始化日志
func (g *globalConfig) load() (*config.Config, error) {
	cfg, err := config.Load(g.path)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	logging.Init(cfg.Log)
	return cfg, nil
}

// open 读取配置并装配组件；一次性命令不需要周期任务
func (g *globalConfig) open(ctx context.Context) (*app.App, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	cfg.Scheduler.Enabled = false
	return app.New(ctx, cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
