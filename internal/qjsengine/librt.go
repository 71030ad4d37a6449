//go:build qjsengine

package qjsengine

import "modernc.org/quickjs"

// librtSource mirrors internal/engine's librtSource — the same minimal
// bootstrap blob, evaluated once per VM since QuickJS has no cached
// unbound-script/per-context-install split (see worker.go's newWorker doc).
const librtSource = `
(function() {
	globalThis.global = globalThis;
})();
`

func installLibrt(vm *quickjs.VM) error {
	v, err := vm.EvalValue(librtSource, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// globalThisCleanupJS is cryguy-worker's internal/quickjs/pool.go cleanup
// script, trimmed to the globals this core itself ever sets (it does not
// own the web-platform globals the teacher's webapi package installs).
const globalThisCleanupJS = `
(function() {
	var perRequest = ['__requestID', '__fn_result'];
	for (var i = 0; i < perRequest.length; i++) {
		try { delete globalThis[perRequest[i]]; } catch(e) {}
	}
})();
`
