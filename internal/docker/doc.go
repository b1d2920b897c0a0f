// Package docker provides Docker image building and container management
// for gptmebox.
//
// It handles build context archiving, image building, container lifecycle,
// port publishing, TTY attachment, and labeling. The Client type is the main
// entry point for all Docker operations.
package docker
