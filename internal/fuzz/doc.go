// Package fuzztests houses Go fuzz harnesses for the module-level code of
// rorsk: the SPIR-V decoder, the conformance transform and the reference
// interpreter loader. Their goal is to guard against panics and broken
// output on arbitrary binaries.
//
// Назначение: прогонять произвольные байты через spirv.Decode,
// conform.Transform и refvm.Load.
//
// Не делает: запуск ядер, запись файлов, выполнение CLI.
//
// Зависимости: internal/spirv, internal/conform, internal/refvm,
// internal/kernel, internal/testkit.

package fuzztests
