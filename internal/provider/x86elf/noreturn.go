package x86elf

// noReturnImports are library functions that never return to their caller.
var noReturnImports = map[string]struct{}{
	"_Exit":                 {},
	"_Unwind_Resume":        {},
	"_ZSt9terminatev":       {},
	"__assert_fail":         {},
	"__chk_fail":            {},
	"__cxa_bad_cast":        {},
	"__cxa_bad_typeid":      {},
	"__cxa_call_unexpected": {},
	"__cxa_rethrow":         {},
	"__cxa_throw":           {},
	"__fortify_fail":        {},
	"__libc_start_main":     {},
	"__longjmp_chk":         {},
	"__stack_chk_fail":      {},
	"_exit":                 {},
	"_longjmp":              {},
	"abort":                 {},
	"err":                   {},
	"errx":                  {},
	"exit":                  {},
	"longjmp":               {},
	"pthread_exit":          {},
	"quick_exit":            {},
	"siglongjmp":            {},
	"verr":                  {},
	"verrx":                 {},
}

// isNoReturnImport returns whether the imported function never returns.
func isNoReturnImport(name string) bool {
	_, ok := noReturnImports[importName(name)]
	return ok
}
