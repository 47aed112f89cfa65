// Command forge is the CLI control tool for a forged daemon: it submits
// and inspects generation jobs, manages model engine processes, drives
// model downloads, and starts/stops the daemon itself.
package main
