// Command membank mines nearest neighbors from pre-computed features and
// evaluates kNN predictions against a filled memory bank.
//
//	membank mine --config configs/cifar10.yml
//	membank predict --config configs/cifar10.yml --k 20
//	membank eval --config configs/cifar10.yml --split val
//	membank translate moco_v2.npz pretext.npz
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "membank:", err)
		os.Exit(1)
	}
}
