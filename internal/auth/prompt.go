package auth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"oura-sync/internal/errors"
)

// Prompter 向操作者展示授权地址，并阻塞等待其粘贴回调地址。
type Prompter interface {
	Prompt(ctx context.Context, authURL string) (string, error)
}

// PromptFunc 使普通函数满足 Prompter。
type PromptFunc func(ctx context.Context, authURL string) (string, error)

func (f PromptFunc) Prompt(ctx context.Context, authURL string) (string, error) {
	return f(ctx, authURL)
}

// ConsolePrompter 在终端打印授权链接并读取一行输入。
type ConsolePrompter struct {
	In  io.Reader
	Out io.Writer
}

func (p ConsolePrompter) Prompt(ctx context.Context, authURL string) (string, error) {
	fmt.Fprintf(p.Out, "Please follow this link and authorize the application:\n%s\n", authURL)
	fmt.Fprint(p.Out, "Enter the full URL you receive after authorization: ")

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", &errors.ErrAuthentication{Reason: "authorization aborted", Err: ctx.Err()}
	case r := <-ch:
		line := strings.TrimSpace(r.line)
		if line == "" {
			if r.err != nil && r.err != io.EOF {
				return "", &errors.ErrAuthentication{Reason: "read authorization response", Err: r.err}
			}
			return "", &errors.ErrAuthentication{Reason: "authorization aborted"}
		}
		return line, nil
	}
}
