package synth

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/leafline-ai/voiced/internal/config"
)

// execStrategy shells out to an external synthesis engine (piper-style: text
// on stdin, raw s16le PCM on stdout). The command may carry {model}, {rate},
// {speed} and {pitch} placeholders, substituted per request.
type execStrategy struct {
	name       string
	argv       []string
	catalog    *VoiceCatalog
	sampleRate int
}

func NewExecStrategy(name, command string, catalog *VoiceCatalog, sampleRate int) (Strategy, error) {
	parser := shellwords.NewParser()
	argv, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	return &execStrategy{
		name:       name,
		argv:       argv,
		catalog:    catalog,
		sampleRate: sampleRate,
	}, nil
}

func (e *execStrategy) Name() string { return e.name }

func (e *execStrategy) Attempt(ctx context.Context, req Request) (PCM, error) {
	voice, _ := e.catalog.Resolve(req.VoiceID, req.Language)

	argv := e.expand(voice, req)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(req.Text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return PCM{}, fmt.Errorf("%s timed out: %w", e.name, ctx.Err())
		}
		return PCM{}, fmt.Errorf("%s failed: %w (%s)", e.name, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return PCM{}, fmt.Errorf("%s produced no audio", e.name)
	}

	data := stdout.Bytes()
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	return PCM{Data: data, SampleRate: e.sampleRate}, nil
}

func (e *execStrategy) expand(voice config.VoiceModel, req Request) []string {
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}
	replacer := strings.NewReplacer(
		"{model}", e.catalog.ModelPath(voice),
		"{rate}", strconv.Itoa(e.sampleRate),
		"{speed}", strconv.FormatFloat(speed, 'f', 2, 64),
		"{pitch}", strconv.FormatFloat(req.Pitch, 'f', 2, 64),
	)
	argv := make([]string, len(e.argv))
	for i, arg := range e.argv {
		argv[i] = replacer.Replace(arg)
	}
	return argv
}
