// Package signature builds and resolves byte signatures: wildcard-masked byte
// patterns that identify one location (usually a function) inside a binary image.
//
// The text form is a space separated list of two digit hex bytes and "?" wildcards:
//
//	48 89 5C 24 ? 57 48 83 EC ?
//
// [Compile] turns text into a [Pattern], [Scanner.FindFirst] returns the lowest
// address a pattern matches, [Synthesize] builds a signature from an instruction
// stream (wildcarding every instruction that is not a plain fallthrough) and
// [Minimizer.Minimize] trims a unique signature down to the shortest prefix that
// still first-matches its target.
//
// The package knows nothing about ELF files or decoders. Memory, instructions and
// function lookup are supplied through [MemoryReader], [InstructionSource] and
// [FunctionResolver]; [Engine] wires them together for callers.
//
// Minimization performs one full scan of the search range per removed byte, so
// its cost grows with signature length times image size. Bound it with a context
// deadline or [Minimizer.MaxSteps] when the image is large or very repetitive.
package signature
