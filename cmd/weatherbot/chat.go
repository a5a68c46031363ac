package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/BaSui01/weatherbot/agent/orchestrator"
	"github.com/BaSui01/weatherbot/agent/session"
	"github.com/BaSui01/weatherbot/api/handlers"
	"github.com/BaSui01/weatherbot/types"
)

// =============================================================================
// 💬 chat 命令
// =============================================================================

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := configFlag(fs)
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := bootstrap(ctx, *configPath, nil)
	if err != nil {
		return err
	}
	defer a.logger.Sync()
	defer a.close(context.WithoutCancel(ctx))

	return chatLoop(ctx, os.Stdin, os.Stdout, a.orchestrator())
}

// chatLoop 读取用户输入直到空行或 EOF。单轮失败只提示错误，会话继续。
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, replier handlers.Replier) error {
	sess := session.New()
	sess.AddMessage(types.RoleAssistant, orchestrator.Greeting)
	fmt.Fprintf(out, "ASSISTANT: %s\n", orchestrator.Greeting)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "USER: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}

		// 失败的轮次不写入历史
		work := session.FromMessages(sess.Messages())
		work.Location = sess.Location
		work.LocationDescription = sess.LocationDescription
		work.WeatherCategory = sess.WeatherCategory

		reply, err := replier.Reply(ctx, line, work)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "ERROR: %v\n", err)
			continue
		}
		sess = work
		fmt.Fprintf(out, "ASSISTANT: %s\n", reply)
	}
}
