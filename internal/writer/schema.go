package writer

import "google.golang.org/protobuf/encoding/protowire"

// Field numbers of the cfg wire format. Every message is encoded as a
// protobuf message, repeated fields are not packed and unknown fields are
// skipped on decoding.
//
//	Module            1 name, 2 address_size, 3 functions, 4 segments,
//	                  5 external_functions, 6 external_variables
//	Function          1 address, 2 name, 3 is_entrypoint, 4 blocks
//	Block             1 address, 2 instructions, 3 successors
//	Instruction       1 address, 2 bytes, 3 local_noreturn,
//	                  4 external_call_name, 5 references, 6 jump_table
//	CrossReference    1 target, 2 operand_type, 3 target_type, 4 location, 5 name
//	JumpTable         1 base_address, 2 offset (zigzag), 3 targets
//	Segment           1 name, 2 address, 3 data, 4 read_only, 5 is_external,
//	                  6 variables, 7 references
//	Variable          1 address, 2 name
//	DataReference     1 address, 2 width, 3 target, 4 target_name, 5 target_is_code
//	ExternalFunction  1 name, 2 address, 3 argument_count, 4 calling_convention,
//	                  5 has_return, 6 no_return, 7 is_weak, 8 signature
//	ExternalVariable  1 name, 2 address, 3 size, 4 is_weak
const (
	moduleName              protowire.Number = 1
	moduleAddressSize       protowire.Number = 2
	moduleFunctions         protowire.Number = 3
	moduleSegments          protowire.Number = 4
	moduleExternalFunctions protowire.Number = 5
	moduleExternalVariables protowire.Number = 6
)

const (
	functionAddress      protowire.Number = 1
	functionName         protowire.Number = 2
	functionIsEntrypoint protowire.Number = 3
	functionBlocks       protowire.Number = 4
)

const (
	blockAddress      protowire.Number = 1
	blockInstructions protowire.Number = 2
	blockSuccessors   protowire.Number = 3
)

const (
	instructionAddress          protowire.Number = 1
	instructionBytes            protowire.Number = 2
	instructionLocalNoReturn    protowire.Number = 3
	instructionExternalCallName protowire.Number = 4
	instructionReferences       protowire.Number = 5
	instructionJumpTable        protowire.Number = 6
)

const (
	referenceTarget      protowire.Number = 1
	referenceOperandType protowire.Number = 2
	referenceTargetType  protowire.Number = 3
	referenceLocation    protowire.Number = 4
	referenceName        protowire.Number = 5
)

const (
	jumpTableBaseAddress protowire.Number = 1
	jumpTableOffset      protowire.Number = 2
	jumpTableTargets     protowire.Number = 3
)

const (
	segmentName       protowire.Number = 1
	segmentAddress    protowire.Number = 2
	segmentData       protowire.Number = 3
	segmentReadOnly   protowire.Number = 4
	segmentIsExternal protowire.Number = 5
	segmentVariables  protowire.Number = 6
	segmentReferences protowire.Number = 7
)

const (
	variableAddress protowire.Number = 1
	variableName    protowire.Number = 2
)

const (
	dataReferenceAddress      protowire.Number = 1
	dataReferenceWidth        protowire.Number = 2
	dataReferenceTarget       protowire.Number = 3
	dataReferenceTargetName   protowire.Number = 4
	dataReferenceTargetIsCode protowire.Number = 5
)

const (
	externalFunctionName              protowire.Number = 1
	externalFunctionAddress           protowire.Number = 2
	externalFunctionArgumentCount     protowire.Number = 3
	externalFunctionCallingConvention protowire.Number = 4
	externalFunctionHasReturn         protowire.Number = 5
	externalFunctionNoReturn          protowire.Number = 6
	externalFunctionIsWeak            protowire.Number = 7
	externalFunctionSignature         protowire.Number = 8
)

const (
	externalVariableName    protowire.Number = 1
	externalVariableAddress protowire.Number = 2
	externalVariableSize    protowire.Number = 3
	externalVariableIsWeak  protowire.Number = 4
)
