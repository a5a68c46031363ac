package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/weatherbot/agent/orchestrator"
	"github.com/BaSui01/weatherbot/eval/conversation"
	"github.com/BaSui01/weatherbot/eval/convlog"
	"github.com/BaSui01/weatherbot/eval/user"
	"github.com/BaSui01/weatherbot/types"
)

const generateMenu = `Options are not case-sensitive. Here are your available options:
Enter "N" to start a new conversation.
Enter an integer N between 1 and 5 to generate N turns in the conversation.
Enter "S" during a conversation to save it to the log.
Enter "R" during a conversation to regenerate the most recent turn.
Enter "M" during the conversation to manually overwrite dialogue for the user's turn.
Enter "V" to view the whole conversation so far.
Enter "U" to view the full emulated user prompt.
Enter "C" to manually chat with assistant. Turn generation will not be supported.
Enter "Q" to quit.
Type "help" at any time to see these options again.`

const manualEndReason = "Ended by user of manual convo generation tool"

// errStopChat 手动聊天中用户输入 X
var errStopChat = errors.New("manual chat stopped")

// emulatedUser 由 LLM 扮演的客户，同时暴露其系统提示词
type emulatedUser interface {
	conversation.User
	SystemMessage(conv *conversation.Conversation) string
}

// =============================================================================
// 🛠️ generate 命令
// =============================================================================

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := configFlag(fs)
	scenarioPrompt := fs.String("scenario", "", "Scenario prompt given to the emulated user")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := bootstrap(ctx, *configPath, nil)
	if err != nil {
		return err
	}
	defer a.logger.Sync()
	defer a.close(context.WithoutCancel(ctx))

	random, err := user.NewRandomGenerator(nil)
	if err != nil {
		return err
	}
	tool := &generateTool{
		in:             bufio.NewScanner(os.Stdin),
		out:            os.Stdout,
		customer:       a.customer(),
		newGenerator:   a.generator,
		profiles:       random,
		scenarioPrompt: *scenarioPrompt,
		standard:       func() (user.ProfileSource, error) { return user.NewStandardGenerator() },
		random:         func() (user.ProfileSource, error) { return user.NewRandomGenerator(nil) },
	}
	if err := tool.openLogs(a.cfg.Eval.LogDir, time.Now()); err != nil {
		return err
	}
	return tool.run(ctx)
}

// generateTool 交互式对话生成工具
type generateTool struct {
	in  *bufio.Scanner
	out io.Writer

	customer     emulatedUser
	newGenerator func(u conversation.User) *conversation.Generator

	profiles         user.ProfileSource
	standard, random func() (user.ProfileSource, error)
	scenarioPrompt   string

	jsonLog      string
	condensedLog string

	gen  *conversation.Generator
	conv *conversation.Conversation
}

func (t *generateTool) openLogs(dir string, now time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	stamp := now.Format("2006_01_02_15_04_05")
	t.jsonLog = filepath.Join(dir, "log_"+stamp+".txt")
	t.condensedLog = filepath.Join(dir, "log_"+stamp+"_condensed.xlsx")
	return nil
}

// readLine 打印提示并读取一行；输入结束时 ok 为 false
func (t *generateTool) readLine(prompt string) (string, bool) {
	fmt.Fprint(t.out, prompt)
	if !t.in.Scan() {
		fmt.Fprintln(t.out)
		return "", false
	}
	return strings.TrimSpace(t.in.Text()), true
}

func (t *generateTool) run(ctx context.Context) error {
	fmt.Fprintln(t.out, "Welcome to the emulated user conversation generation tool.")
	fmt.Fprintln(t.out, generateMenu)
	for {
		if ctx.Err() != nil {
			return nil
		}
		cmd, ok := t.readLine("Your command: ")
		if !ok {
			return t.in.Err()
		}
		if quit := t.route(ctx, strings.ToUpper(cmd)); quit {
			return nil
		}
	}
}

func (t *generateTool) route(ctx context.Context, cmd string) (quit bool) {
	switch cmd {
	case "Q":
		return true
	case "N":
		t.newConversation(ctx)
	case "C":
		t.manualChat(ctx)
	case "1", "2", "3", "4", "5":
		if t.requireConversation() {
			n, _ := strconv.Atoi(cmd)
			t.turns(ctx, n)
		}
	case "S":
		if t.requireConversation() {
			t.save(t.conv)
		}
	case "R":
		if t.requireConversation() {
			t.regenerate(ctx)
		}
	case "M":
		if t.requireConversation() {
			t.overwrite()
		}
	case "V":
		if t.requireConversation() {
			t.view(t.conv)
		}
	case "U":
		if t.requireConversation() {
			fmt.Fprintln(t.out, t.customer.SystemMessage(t.conv))
		}
	default:
		fmt.Fprintln(t.out, generateMenu)
	}
	return false
}

func (t *generateTool) requireConversation() bool {
	if t.conv == nil {
		fmt.Fprintln(t.out, `No conversation yet. Enter "N" to start one.`)
		return false
	}
	return true
}

// =============================================================================
// 🗣️ 新对话与轮次
// =============================================================================

func (t *generateTool) newConversation(ctx context.Context) {
	for {
		profile, err := t.profiles.Next()
		if err != nil {
			fmt.Fprintf(t.out, "ERROR: %v\n", err)
			return
		}
		fmt.Fprintln(t.out, profile.Prompt)
		answer, ok := t.readLine(`Type "S" to switch to standard profiles. Type "G" to switch to randomly generated user profiles. ` +
			`Are you OK with this customer profile? Type "Y" or "N" or "O" to override with your own prompt: `)
		if !ok {
			return
		}

		switch strings.ToUpper(answer) {
		case "Y":
		case "O":
			custom, use := t.customPrompt()
			if !use {
				continue
			}
			profile = conversation.CustomerProfile{Prompt: custom}
		case "S":
			t.switchProfiles(t.standard)
			continue
		case "G":
			t.switchProfiles(t.random)
			continue
		default:
			continue
		}

		if t.start(ctx, profile, t.scenarioPrompt, t.customer) {
			t.view(t.conv)
		}
		return
	}
}

func (t *generateTool) switchProfiles(factory func() (user.ProfileSource, error)) {
	src, err := factory()
	if err != nil {
		fmt.Fprintf(t.out, "ERROR: %v\n", err)
		return
	}
	t.profiles = src
}

// customPrompt 读取多行提示词，以仅含 "." 的一行结束
func (t *generateTool) customPrompt() (string, bool) {
	for {
		fmt.Fprintln(t.out, `Paste your custom prompt below. Terminate entry with a line containing only ".":`)
		var lines []string
		for t.in.Scan() {
			line := t.in.Text()
			if strings.TrimSpace(line) == "." {
				break
			}
			lines = append(lines, line)
		}
		prompt := strings.Join(lines, "\n")
		fmt.Fprintln(t.out, "Prompt Received:")
		fmt.Fprintln(t.out, prompt)

		for {
			answer, ok := t.readLine(`Use this prompt? Type "Y" or "R" to rewrite or "A" to abort and auto-generate: `)
			if !ok {
				return "", false
			}
			switch strings.ToUpper(answer) {
			case "Y":
				return prompt, true
			case "A":
				return "", false
			case "R":
			default:
				fmt.Fprintf(t.out, "Unknown command %s\n", answer)
				continue
			}
			break
		}
	}
}

// start 以问候语开场，并由 u 给出第一条用户消息
func (t *generateTool) start(ctx context.Context, profile conversation.CustomerProfile, scenarioPrompt string, u conversation.User) bool {
	conv, err := conversation.NewWithHistory([]types.Message{types.NewAssistantMessage(orchestrator.Greeting)})
	if err != nil {
		fmt.Fprintf(t.out, "ERROR: %v\n", err)
		return false
	}
	gen := t.newGenerator(u)
	if err := gen.Initialize(ctx, conv, scenarioPrompt, profile); err != nil {
		if !errors.Is(err, errStopChat) {
			fmt.Fprintf(t.out, "ERROR: %v\n", err)
		}
		return false
	}
	t.gen, t.conv = gen, conv
	return true
}

// turns 生成至多 n 轮，遇到失败或空回复即停止
func (t *generateTool) turns(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		if !t.step(ctx) {
			return
		}
	}
}

func (t *generateTool) step(ctx context.Context) bool {
	before := t.conv.Len()
	ok, err := t.gen.Step(ctx, t.conv)
	t.printSince(before)
	switch {
	case err != nil:
		fmt.Fprintf(t.out, "ERROR: turn failed: %v\n", err)
		return false
	case !ok:
		fmt.Fprintln(t.out, "The assistant returned an empty reply.")
		return false
	}
	if in, stop := conversation.ConversationInterrupted(t.conv); stop {
		fmt.Fprintf(t.out, "Note: %s (%s)\n", in.Reason, in.Detail)
	}
	return true
}

func (t *generateTool) regenerate(ctx context.Context) {
	if err := t.gen.Rewind(t.conv); err != nil {
		fmt.Fprintf(t.out, "ERROR: %v\n", err)
		return
	}
	t.step(ctx)
}

func (t *generateTool) overwrite() {
	msg, ok := t.readLine(`You have chosen to overwrite the most recent customer message. ` +
		`Enter the new message, or enter "X" to return to the main menu: `)
	if !ok || strings.EqualFold(msg, "X") {
		return
	}
	if err := t.conv.ReplaceLastUserMessage(msg); err != nil {
		fmt.Fprintf(t.out, "ERROR: %v\n", err)
		return
	}
	fmt.Fprintln(t.out, "You've successfully overwritten the last customer message! New conversation history:")
	fmt.Fprint(t.out, t.conv.Transcript())
}

func (t *generateTool) view(conv *conversation.Conversation) {
	fmt.Fprintf(t.out, "Conversation %s\n", conv.ID())
	fmt.Fprint(t.out, conv.Transcript())
}

func (t *generateTool) printSince(from int) {
	msgs := t.conv.Messages()
	for _, m := range msgs[min(from, len(msgs)):] {
		fmt.Fprintf(t.out, "%s: %s\n", strings.ToUpper(string(m.Role)), m.Content)
	}
}

func (t *generateTool) save(conv *conversation.Conversation) {
	if err := convlog.AppendJSON(t.jsonLog, conv, manualEndReason, nil); err != nil {
		fmt.Fprintf(t.out, "ERROR: %v\n", err)
		return
	}
	fmt.Fprintf(t.out, "Complete log saved to %s.\n", t.jsonLog)
	if err := convlog.WriteCondensed(t.condensedLog, conv, manualEndReason, nil); err != nil {
		fmt.Fprintf(t.out, "ERROR: %v\n", err)
		return
	}
	fmt.Fprintf(t.out, "Condensed log saved to %s.\n", t.condensedLog)
}

// =============================================================================
// ⌨️ 手动聊天
// =============================================================================

// manualChat 由操作者扮演用户。输入 S 保存，V 查看，X 返回主菜单。
func (t *generateTool) manualChat(ctx context.Context) {
	typist := user.Func(func(_ context.Context, conv *conversation.Conversation) (string, error) {
		if last, ok := conv.Last(); ok && last.Role == types.RoleAssistant {
			fmt.Fprintf(t.out, "\nASSISTANT: %s\n\n", last.Content)
		}
		for {
			msg, ok := t.readLine("Your message: ")
			if !ok {
				return "", errStopChat
			}
			switch strings.ToLower(msg) {
			case "x":
				return "", errStopChat
			case "s":
				t.save(conv)
			case "v":
				t.view(conv)
			case "":
			default:
				return msg, nil
			}
		}
	})

	profile := conversation.CustomerProfile{
		Name:       "Created using manual chat with assistant",
		Attributes: map[string]any{"location": map[string]any{}},
	}
	if !t.start(ctx, profile, "N/A", typist) {
		return
	}
	for {
		ok, err := t.gen.Step(ctx, t.conv)
		if errors.Is(err, errStopChat) {
			return
		}
		if err != nil {
			fmt.Fprintf(t.out, "ERROR: turn failed: %v\n", err)
			return
		}
		if !ok {
			fmt.Fprintln(t.out, "The assistant returned an empty reply.")
			return
		}
	}
}
