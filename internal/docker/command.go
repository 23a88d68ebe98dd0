package docker

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

type Image struct {
	Name     string
	Tag      string
	FilePath string
}

func (i Image) Ref() string {
	if i.Tag == "" {
		return i.Name
	}
	return i.Name + ":" + i.Tag
}

type Port struct {
	Host      uint16
	Container uint16
}

func (p Port) String() string {
	return fmt.Sprintf("%d:%d", p.Host, p.Container)
}

type Volume struct {
	Host      string
	Container string
}

// String renders host:container with the host side made absolute.
func (v Volume) String() string {
	host := v.Host
	if abs, err := filepath.Abs(host); err == nil {
		host = abs
	}
	return host + ":" + v.Container
}

type Container struct {
	Name    string
	Ports   []Port
	Volumes []Volume
	Env     map[string]string
	Image   Image
}

func (c Container) args() []string {
	var args []string
	for _, p := range c.Ports {
		args = append(args, "-p"+p.String())
	}
	args = append(args, "--name", c.Name)
	for _, v := range c.Volumes {
		args = append(args, "-v"+v.String())
	}
	for _, k := range slices.Sorted(maps.Keys(c.Env)) {
		args = append(args, "-e"+k+"="+c.Env[k])
	}
	return append(args, c.Image.Ref())
}

// Command is a docker CLI invocation.
type Command struct {
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func newCommand(args ...string) *Command {
	return &Command{Args: args, Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (c *Command) String() string {
	return strings.Join(c.Args, " ")
}

// Run executes the command and waits for it to exit.
func (c *Command) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, Bin, c.Args...)
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to run docker %s: %w", c.Args[0], err)
	}
	return nil
}

func BuildImage(img Image, rm bool) *Command {
	args := []string{"image", "build"}
	if rm {
		args = append(args, "--rm")
	}
	if img.FilePath != "" {
		args = append(args, img.FilePath)
	}
	return newCommand(append(args, "-t", img.Ref())...)
}

func RemoveImage(img Image) *Command {
	return newCommand("image", "rm", img.Ref())
}

func RunContainer(c Container, rm, detach bool) *Command {
	args := []string{"container", "run"}
	if rm {
		args = append(args, "--rm")
	}
	if detach {
		args = append(args, "--detach")
	}
	return newCommand(append(args, c.args()...)...)
}

// Exec runs a command inside a running container.
func Exec(name string, cmd ...string) *Command {
	return newCommand(append([]string{"exec", name}, cmd...)...)
}

func CopyTo(name, src, dst string) *Command {
	return newCommand("container", "cp", src, name+":"+dst)
}

func CopyFrom(name, src, dst string) *Command {
	return newCommand("container", "cp", name+":"+src, dst)
}

func Start(name string) *Command   { return newCommand("container", "start", name) }
func Stop(name string) *Command    { return newCommand("container", "stop", name) }
func Pause(name string) *Command   { return newCommand("container", "pause", name) }
func Unpause(name string) *Command { return newCommand("container", "unpause", name) }
func Restart(name string) *Command { return newCommand("container", "restart", name) }

// InitCkbVolume creates a named volume holding a freshly initialized dev
// chain.
func InitCkbVolume(name string) []*Command {
	return []*Command{
		newCommand("volume", "create", name),
		newCommand("container", "run", "--rm", "-v"+name+":/var/lib/ckb", "nervos/ckb:latest", "init", "--chain", "dev", "--force"),
	}
}
