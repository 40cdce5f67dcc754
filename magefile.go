//go:build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

var (
	version    = "0.1.0"
	binaryName = "shuttlefw"
	ldflags    = fmt.Sprintf("-s -w -X main.version=%s", version)
)

// Build builds the binary for the host platform.
func Build() error {
	fmt.Println("Building for host platform...")
	return goBuild("", "", "")
}

// BuildLinuxAmd64 cross-compiles for linux/amd64.
func BuildLinuxAmd64() error {
	fmt.Println("Cross-compiling for linux/amd64...")
	return goBuild("linux", "amd64", "amd64")
}

// BuildLinuxArm64 cross-compiles for linux/arm64.
func BuildLinuxArm64() error {
	fmt.Println("Cross-compiling for linux/arm64...")
	return goBuild("linux", "arm64", "arm64")
}

// Test runs all tests.
func Test() error {
	return sh("go", "test", "./...")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh("golangci-lint", "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	return os.RemoveAll("dist")
}

func goBuild(goos, goarch, suffix string) error {
	output := filepath.Join("dist", binaryName)
	if suffix != "" {
		output = filepath.Join("dist", fmt.Sprintf("%s_%s", binaryName, suffix))
	}

	if err := os.MkdirAll("dist", 0755); err != nil {
		return err
	}

	env := os.Environ()
	env = append(env, "CGO_ENABLED=0")
	if goos != "" {
		env = append(env, "GOOS="+goos)
	}
	if goarch != "" {
		env = append(env, "GOARCH="+goarch)
	}

	cmd := exec.Command("go", "build",
		"-ldflags", ldflags,
		"-trimpath",
		"-o", output,
		"./cmd/shuttlefw",
	)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func sh(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
