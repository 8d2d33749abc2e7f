// Package verification verifies the consistency of a recovered module and
// that the generated output file recreates it.
package verification

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/retroenv/retrocfg/internal/jumptable"
	"github.com/retroenv/retrocfg/internal/program"
	"github.com/retroenv/retrocfg/internal/writer"
	"github.com/retroenv/retrogolib/log"
)

// maxReportedMismatches limits the number of logged output differences.
const maxReportedMismatches = 10

// VerifyModule checks the structural invariants of the recovered module.
// All found violations are returned joined.
func VerifyModule(module *program.Module, addressSize int) error {
	var errs []error
	mask := jumptable.AddressMask(addressSize)
	seen := make(map[uint64]struct{}, len(module.Functions))
	targets := flowTargets(module)

	for _, fn := range module.Functions {
		if _, ok := seen[fn.Address]; ok {
			errs = append(errs, fmt.Errorf("duplicate function at 0x%x", fn.Address))
		}
		seen[fn.Address] = struct{}{}

		blocks := make(map[uint64]struct{}, len(fn.Blocks))
		for _, block := range fn.Blocks {
			blocks[block.Address] = struct{}{}
		}

		for _, block := range fn.Blocks {
			errs = append(errs, verifyBlock(fn, block, blocks, targets, mask)...)
		}
	}

	return errors.Join(errs...)
}

// flowTargets returns the addresses outside of a function that a block can
// continue at: function starts, external functions and control flow
// references, which include queued function addresses.
func flowTargets(module *program.Module) map[uint64]struct{} {
	targets := make(map[uint64]struct{})
	for _, fn := range module.Functions {
		targets[fn.Address] = struct{}{}
		for _, block := range fn.Blocks {
			for _, ins := range block.Instructions {
				for _, ref := range ins.References {
					if ref.OperandType == program.ControlFlowOperand {
						targets[ref.Target] = struct{}{}
					}
				}
			}
		}
	}
	for _, ext := range module.ExternalFunctions {
		targets[ext.Address] = struct{}{}
	}
	return targets
}

func verifyBlock(fn *program.Function, block *program.Block, blocks, targets map[uint64]struct{},
	mask uint64) []error {

	var errs []error

	expected := block.Address
	for _, ins := range block.Instructions {
		if ins.Length() == 0 {
			errs = append(errs, fmt.Errorf("function 0x%x: empty instruction at 0x%x", fn.Address, ins.Address))
		}
		if ins.Address != expected {
			errs = append(errs, fmt.Errorf("function 0x%x block 0x%x: instruction at 0x%x, expected 0x%x",
				fn.Address, block.Address, ins.Address, expected))
		}
		expected = ins.Address + uint64(ins.Length())

		if ins.JumpTable == nil {
			continue
		}
		if ins.JumpTable.BaseAddress&mask != ins.JumpTable.BaseAddress {
			errs = append(errs, fmt.Errorf("jump table at 0x%x: unmasked base 0x%x",
				ins.Address, ins.JumpTable.BaseAddress))
		}
		for _, target := range ins.JumpTable.Targets {
			if target&mask != target {
				errs = append(errs, fmt.Errorf("jump table at 0x%x: unmasked target 0x%x", ins.Address, target))
			}
		}
	}

	for _, succ := range block.Successors {
		_, local := blocks[succ]
		_, flow := targets[succ]
		if !local && !flow {
			errs = append(errs, fmt.Errorf("function 0x%x block 0x%x: unknown successor 0x%x",
				fn.Address, block.Address, succ))
		}
	}
	return errs
}

// VerifyOutput verifies that the cfg output file decodes to the recovered module.
func VerifyOutput(logger *log.Logger, outputFile string, module *program.Module) error {
	if outputFile == "" {
		return errors.New("can not verify console output")
	}

	data, err := os.ReadFile(outputFile)
	if err != nil {
		return fmt.Errorf("reading output file for comparison: %w", err)
	}

	decoded, err := writer.Decode(data)
	if err != nil {
		return fmt.Errorf("decoding output file: %w", err)
	}

	if err := checkBufferEqual(logger, writer.Encode(module), writer.Encode(decoded)); err != nil {
		return fmt.Errorf("output mismatch: %w", err)
	}
	if len(decoded.Functions) != len(module.Functions) {
		return fmt.Errorf("function count mismatch, expected %d but got %d",
			len(module.Functions), len(decoded.Functions))
	}
	return nil
}

func checkBufferEqual(logger *log.Logger, input, output []byte) error {
	if bytes.Equal(input, output) {
		return nil
	}
	if len(input) != len(output) {
		return fmt.Errorf("mismatched lengths, %d != %d", len(input), len(output))
	}

	var diffs uint64
	for i := range input {
		if input[i] == output[i] {
			continue
		}

		diffs++
		if diffs < maxReportedMismatches {
			logger.Error("Offset mismatch",
				log.Hex("offset", i),
				log.Hex("expected", input[i]),
				log.Hex("got", output[i]))
		}
	}
	return fmt.Errorf("%d offset mismatches", diffs)
}
