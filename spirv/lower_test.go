package spirv_test

import (
	"strings"
	"testing"

	"github.com/gogpu/naga/ir"

	"github.com/gogpu/spirvcross/internal/spvasm"
	"github.com/gogpu/spirvcross/spirv"
)

// buildVertexPassthrough assembles a vertex shader that returns its
// single vec4 argument as the position output.
func buildVertexPassthrough(t *testing.T) *spirv.Module {
	t.Helper()
	a := spvasm.New()
	f32 := a.ID()
	v4 := a.ID()
	fnT := a.ID()
	fn := a.ID()
	param := a.ID()
	label := a.ID()
	a.Op(spirv.OpCapability, 1)
	a.Op(spirv.OpMemoryModel, 0, 1)
	a.Op(spirv.OpEntryPoint, spvasm.Cat(spvasm.U(uint32(spirv.ExecutionModelVertex), fn), spvasm.Str("vs_main"))...)
	a.Op(spirv.OpName, spvasm.Cat(spvasm.U(fn), spvasm.Str("vs_main"))...)
	a.Op(spirv.OpName, spvasm.Cat(spvasm.U(param), spvasm.Str("position"))...)
	a.Op(spirv.OpTypeFloat, f32, 32)
	a.Op(spirv.OpTypeVector, v4, f32, 4)
	a.Op(spirv.OpTypeFunction, fnT, v4, v4)
	a.Op(spirv.OpFunction, v4, fn, 0, fnT)
	a.Op(spirv.OpFunctionParameter, v4, param)
	a.Op(spirv.OpLabel, label)
	a.Op(spirv.OpReturnValue, param)
	a.Op(spirv.OpFunctionEnd)

	m, err := spirv.Parse(a.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return m
}

func countExprs(fn *ir.Function, match func(ir.ExpressionKind) bool) int {
	n := 0
	for _, e := range fn.Expressions {
		if match(e.Kind) {
			n++
		}
	}
	return n
}

func TestLowerVertexInvertY(t *testing.T) {
	m := buildVertexPassthrough(t)
	irmod, err := m.Lower(&spirv.LowerOptions{InvertY: true})
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if len(irmod.EntryPoints) != 1 || irmod.EntryPoints[0].Stage != ir.StageVertex {
		t.Fatalf("entry points = %+v, want one vertex entry", irmod.EntryPoints)
	}
	fn := &irmod.Functions[irmod.EntryPoints[0].Function]

	if fn.Result == nil || fn.Result.Binding == nil {
		t.Fatal("vertex entry has no bound result")
	}
	if b, ok := (*fn.Result.Binding).(ir.BuiltinBinding); !ok || b.Builtin != ir.BuiltinPosition {
		t.Errorf("result binding = %+v, want position builtin", *fn.Result.Binding)
	}
	if len(fn.Arguments) != 1 {
		t.Fatalf("got %d arguments, want 1", len(fn.Arguments))
	}
	if fn.Arguments[0].Binding == nil {
		t.Fatal("argument has no binding")
	}
	if b, ok := (*fn.Arguments[0].Binding).(ir.LocationBinding); !ok || b.Location != 0 {
		t.Errorf("argument binding = %+v, want location 0", *fn.Arguments[0].Binding)
	}

	negations := countExprs(fn, func(k ir.ExpressionKind) bool {
		u, ok := k.(ir.ExprUnary)
		return ok && u.Op == ir.UnaryNegate
	})
	if negations != 1 {
		t.Errorf("got %d negations, want 1 (the Y component)", negations)
	}
	if n := countExprs(fn, func(k ir.ExpressionKind) bool {
		_, ok := k.(ir.ExprCompose)
		return ok
	}); n != 1 {
		t.Errorf("got %d compose expressions, want 1 (the rebuilt position)", n)
	}
	last := fn.Body[len(fn.Body)-1]
	ret, ok := last.Kind.(ir.StmtReturn)
	if !ok || ret.Value == nil {
		t.Fatalf("last statement = %+v, want value return", last.Kind)
	}
	if _, ok := fn.Expressions[*ret.Value].Kind.(ir.ExprCompose); !ok {
		t.Errorf("returned expression = %T, want the composed position", fn.Expressions[*ret.Value].Kind)
	}
}

func TestLowerVertexWithoutInvertY(t *testing.T) {
	m := buildVertexPassthrough(t)
	irmod, err := m.Lower(nil)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	fn := &irmod.Functions[0]
	if n := countExprs(fn, func(k ir.ExpressionKind) bool {
		_, ok := k.(ir.ExprUnary)
		return ok
	}); n != 0 {
		t.Errorf("got %d unary expressions, want 0 without Y inversion", n)
	}
	ret, ok := fn.Body[len(fn.Body)-1].Kind.(ir.StmtReturn)
	if !ok || ret.Value == nil {
		t.Fatal("missing value return")
	}
	if _, ok := fn.Expressions[*ret.Value].Kind.(ir.ExprFunctionArgument); !ok {
		t.Errorf("returned expression = %T, want the argument itself", fn.Expressions[*ret.Value].Kind)
	}
}

func TestLowerFragmentUniformBuffer(t *testing.T) {
	a := spvasm.New()
	f32 := a.ID()
	v4 := a.ID()
	u32T := a.ID()
	block := a.ID()
	ptrU := a.ID()
	ptrUv4 := a.ID()
	fnT := a.ID()
	c0 := a.ID()
	ubo := a.ID()
	fn := a.ID()
	label := a.ID()
	ac := a.ID()
	val := a.ID()
	a.Op(spirv.OpCapability, 1)
	a.Op(spirv.OpMemoryModel, 0, 1)
	a.Op(spirv.OpEntryPoint, spvasm.Cat(spvasm.U(uint32(spirv.ExecutionModelFragment), fn), spvasm.Str("fs_main"))...)
	a.Op(spirv.OpExecutionMode, fn, uint32(spirv.ExecutionModeOriginUpperLeft))
	a.Op(spirv.OpName, spvasm.Cat(spvasm.U(fn), spvasm.Str("fs_main"))...)
	a.Op(spirv.OpName, spvasm.Cat(spvasm.U(ubo), spvasm.Str("params"))...)
	a.Op(spirv.OpName, spvasm.Cat(spvasm.U(block), spvasm.Str("Params"))...)
	a.Op(spirv.OpMemberName, spvasm.Cat(spvasm.U(block, 0), spvasm.Str("color"))...)
	a.Op(spirv.OpDecorate, ubo, uint32(spirv.DecorationDescriptorSet), 0)
	a.Op(spirv.OpDecorate, ubo, uint32(spirv.DecorationBinding), 0)
	a.Op(spirv.OpDecorate, block, uint32(spirv.DecorationBlock))
	a.Op(spirv.OpMemberDecorate, block, 0, uint32(spirv.DecorationOffset), 0)
	a.Op(spirv.OpTypeFloat, f32, 32)
	a.Op(spirv.OpTypeVector, v4, f32, 4)
	a.Op(spirv.OpTypeInt, u32T, 32, 0)
	a.Op(spirv.OpTypeStruct, block, v4)
	a.Op(spirv.OpTypePointer, ptrU, uint32(spirv.StorageClassUniform), block)
	a.Op(spirv.OpTypePointer, ptrUv4, uint32(spirv.StorageClassUniform), v4)
	a.Op(spirv.OpTypeFunction, fnT, v4)
	a.Op(spirv.OpConstant, u32T, c0, 0)
	a.Op(spirv.OpVariable, ptrU, ubo, uint32(spirv.StorageClassUniform))
	a.Op(spirv.OpFunction, v4, fn, 0, fnT)
	a.Op(spirv.OpLabel, label)
	a.Op(spirv.OpAccessChain, ptrUv4, ac, ubo, c0)
	a.Op(spirv.OpLoad, v4, val, ac)
	a.Op(spirv.OpReturnValue, val)
	a.Op(spirv.OpFunctionEnd)

	m, err := spirv.Parse(a.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	irmod, err := m.Lower(nil)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	if len(irmod.GlobalVariables) != 1 {
		t.Fatalf("got %d globals, want 1", len(irmod.GlobalVariables))
	}
	g := irmod.GlobalVariables[0]
	if g.Name != "params" || g.Space != ir.SpaceUniform {
		t.Errorf("global = %q in %v, want %q in uniform space", g.Name, g.Space, "params")
	}
	if g.Binding == nil || *g.Binding != (ir.ResourceBinding{Group: 0, Binding: 0}) {
		t.Errorf("global binding = %+v, want group 0 binding 0", g.Binding)
	}

	fn0 := &irmod.Functions[0]
	if n := countExprs(fn0, func(k ir.ExpressionKind) bool {
		idx, ok := k.(ir.ExprAccessIndex)
		return ok && idx.Index == 0
	}); n != 1 {
		t.Errorf("got %d constant-index accesses, want 1 (folded access chain)", n)
	}
	if n := countExprs(fn0, func(k ir.ExpressionKind) bool {
		_, ok := k.(ir.ExprLoad)
		return ok
	}); n != 0 {
		t.Errorf("got %d loads, want 0; reads alias the access expression", n)
	}
	ret, ok := fn0.Body[len(fn0.Body)-1].Kind.(ir.StmtReturn)
	if !ok || ret.Value == nil {
		t.Fatal("missing value return")
	}
	if _, ok := fn0.Expressions[*ret.Value].Kind.(ir.ExprAccessIndex); !ok {
		t.Errorf("returned expression = %T, want the member access", fn0.Expressions[*ret.Value].Kind)
	}
	if len(fn0.ExpressionTypes) != len(fn0.Expressions) {
		t.Errorf("resolved %d expression types for %d expressions", len(fn0.ExpressionTypes), len(fn0.Expressions))
	}
}

func TestLowerLocalVariableRead(t *testing.T) {
	a := spvasm.New()
	f32 := a.ID()
	fnT := a.ID()
	ptrFn := a.ID()
	c1 := a.ID()
	fn := a.ID()
	entry := a.ID()
	x := a.ID()
	val := a.ID()
	a.Op(spirv.OpTypeFloat, f32, 32)
	a.Op(spirv.OpTypeFunction, fnT, f32)
	a.Op(spirv.OpTypePointer, ptrFn, uint32(spirv.StorageClassFunction), f32)
	a.Op(spirv.OpConstant, f32, c1, 0x3f800000)
	a.Op(spirv.OpFunction, f32, fn, 0, fnT)
	a.Op(spirv.OpLabel, entry)
	a.Op(spirv.OpVariable, ptrFn, x, uint32(spirv.StorageClassFunction))
	a.Op(spirv.OpStore, x, c1)
	a.Op(spirv.OpLoad, f32, val, x)
	a.Op(spirv.OpReturnValue, val)
	a.Op(spirv.OpFunctionEnd)

	m, err := spirv.Parse(a.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	irmod, err := m.Lower(nil)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	fn0 := &irmod.Functions[0]
	if n := countExprs(fn0, func(k ir.ExpressionKind) bool {
		_, ok := k.(ir.ExprLoad)
		return ok
	}); n != 0 {
		t.Errorf("got %d loads, want 0; reads alias the variable expression", n)
	}
	ret, ok := fn0.Body[len(fn0.Body)-1].Kind.(ir.StmtReturn)
	if !ok || ret.Value == nil {
		t.Fatal("missing value return")
	}
	if _, ok := fn0.Expressions[*ret.Value].Kind.(ir.ExprLocalVariable); !ok {
		t.Errorf("returned expression = %T, want the local variable", fn0.Expressions[*ret.Value].Kind)
	}
	if len(fn0.ExpressionTypes) != len(fn0.Expressions) {
		t.Errorf("resolved %d expression types for %d expressions", len(fn0.ExpressionTypes), len(fn0.Expressions))
	}
}

func TestLowerComputeEntry(t *testing.T) {
	a := spvasm.New()
	voidT := a.ID()
	u32T := a.ID()
	v3u := a.ID()
	fnT := a.ID()
	fn := a.ID()
	gid := a.ID()
	label := a.ID()
	a.Op(spirv.OpCapability, 1)
	a.Op(spirv.OpMemoryModel, 0, 1)
	a.Op(spirv.OpEntryPoint, spvasm.Cat(spvasm.U(uint32(spirv.ExecutionModelGLCompute), fn), spvasm.Str("cs_main"))...)
	a.Op(spirv.OpExecutionMode, fn, uint32(spirv.ExecutionModeLocalSize), 8, 8, 1)
	a.Op(spirv.OpTypeVoid, voidT)
	a.Op(spirv.OpTypeInt, u32T, 32, 0)
	a.Op(spirv.OpTypeVector, v3u, u32T, 3)
	a.Op(spirv.OpTypeFunction, fnT, voidT, v3u)
	a.Op(spirv.OpFunction, voidT, fn, 0, fnT)
	a.Op(spirv.OpFunctionParameter, v3u, gid)
	a.Op(spirv.OpLabel, label)
	a.Op(spirv.OpReturn)
	a.Op(spirv.OpFunctionEnd)

	m, err := spirv.Parse(a.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	irmod, err := m.Lower(nil)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	ep := irmod.EntryPoints[0]
	if ep.Stage != ir.StageCompute {
		t.Errorf("stage = %v, want compute", ep.Stage)
	}
	if ep.Workgroup != [3]uint32{8, 8, 1} {
		t.Errorf("workgroup = %v, want [8 8 1]", ep.Workgroup)
	}
	fn0 := &irmod.Functions[ep.Function]
	if fn0.Result != nil {
		t.Error("void entry has a result")
	}
	if fn0.Arguments[0].Binding == nil {
		t.Fatal("argument has no binding")
	}
	b, ok := (*fn0.Arguments[0].Binding).(ir.BuiltinBinding)
	if !ok || b.Builtin != ir.BuiltinGlobalInvocationID {
		t.Errorf("argument binding = %+v, want global invocation id builtin", *fn0.Arguments[0].Binding)
	}
}

func TestLowerSelection(t *testing.T) {
	a := spvasm.New()
	voidT := a.ID()
	boolT := a.ID()
	f32 := a.ID()
	fnT := a.ID()
	ptrFn := a.ID()
	cond := a.ID()
	c1 := a.ID()
	c2 := a.ID()
	fn := a.ID()
	entry := a.ID()
	x := a.ID()
	thenL := a.ID()
	elseL := a.ID()
	mergeL := a.ID()
	a.Op(spirv.OpTypeVoid, voidT)
	a.Op(spirv.OpTypeBool, boolT)
	a.Op(spirv.OpTypeFloat, f32, 32)
	a.Op(spirv.OpTypeFunction, fnT, voidT)
	a.Op(spirv.OpTypePointer, ptrFn, uint32(spirv.StorageClassFunction), f32)
	a.Op(spirv.OpConstantTrue, boolT, cond)
	a.Op(spirv.OpConstant, f32, c1, 0x3f800000)
	a.Op(spirv.OpConstant, f32, c2, 0x40000000)
	a.Op(spirv.OpFunction, voidT, fn, 0, fnT)
	a.Op(spirv.OpLabel, entry)
	a.Op(spirv.OpVariable, ptrFn, x, uint32(spirv.StorageClassFunction))
	a.Op(spirv.OpSelectionMerge, mergeL, 0)
	a.Op(spirv.OpBranchConditional, cond, thenL, elseL)
	a.Op(spirv.OpLabel, thenL)
	a.Op(spirv.OpStore, x, c1)
	a.Op(spirv.OpBranch, mergeL)
	a.Op(spirv.OpLabel, elseL)
	a.Op(spirv.OpStore, x, c2)
	a.Op(spirv.OpBranch, mergeL)
	a.Op(spirv.OpLabel, mergeL)
	a.Op(spirv.OpReturn)
	a.Op(spirv.OpFunctionEnd)

	m, err := spirv.Parse(a.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	irmod, err := m.Lower(nil)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	fn0 := &irmod.Functions[0]
	if len(fn0.LocalVars) != 1 {
		t.Fatalf("got %d local variables, want 1", len(fn0.LocalVars))
	}

	var ifStmt *ir.StmtIf
	for _, s := range fn0.Body {
		if v, ok := s.Kind.(ir.StmtIf); ok {
			ifStmt = &v
		}
	}
	if ifStmt == nil {
		t.Fatal("no StmtIf in body")
	}
	if !hasStore(ifStmt.Accept) || !hasStore(ifStmt.Reject) {
		t.Errorf("both branches must store: accept=%v reject=%v", ifStmt.Accept, ifStmt.Reject)
	}
	if _, ok := fn0.Body[len(fn0.Body)-1].Kind.(ir.StmtReturn); !ok {
		t.Errorf("last statement = %T, want return after the merge", fn0.Body[len(fn0.Body)-1].Kind)
	}
}

func hasStore(b ir.Block) bool {
	for _, s := range b {
		if _, ok := s.Kind.(ir.StmtStore); ok {
			return true
		}
	}
	return false
}

func TestLowerLoopBreakIf(t *testing.T) {
	a := spvasm.New()
	voidT := a.ID()
	boolT := a.ID()
	fnT := a.ID()
	cond := a.ID()
	fn := a.ID()
	entry := a.ID()
	header := a.ID()
	bodyL := a.ID()
	contL := a.ID()
	mergeL := a.ID()
	a.Op(spirv.OpTypeVoid, voidT)
	a.Op(spirv.OpTypeBool, boolT)
	a.Op(spirv.OpTypeFunction, fnT, voidT)
	a.Op(spirv.OpConstantTrue, boolT, cond)
	a.Op(spirv.OpFunction, voidT, fn, 0, fnT)
	a.Op(spirv.OpLabel, entry)
	a.Op(spirv.OpBranch, header)
	a.Op(spirv.OpLabel, header)
	a.Op(spirv.OpLoopMerge, mergeL, contL, 0)
	a.Op(spirv.OpBranch, bodyL)
	a.Op(spirv.OpLabel, bodyL)
	a.Op(spirv.OpBranch, contL)
	a.Op(spirv.OpLabel, contL)
	a.Op(spirv.OpBranchConditional, cond, mergeL, header)
	a.Op(spirv.OpLabel, mergeL)
	a.Op(spirv.OpReturn)
	a.Op(spirv.OpFunctionEnd)

	m, err := spirv.Parse(a.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	irmod, err := m.Lower(nil)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	fn0 := &irmod.Functions[0]
	var loop *ir.StmtLoop
	for _, s := range fn0.Body {
		if v, ok := s.Kind.(ir.StmtLoop); ok {
			loop = &v
		}
	}
	if loop == nil {
		t.Fatal("no StmtLoop in body")
	}
	if loop.BreakIf == nil {
		t.Fatal("loop has no break-if; the conditional back edge was not recovered")
	}
	if _, ok := fn0.Expressions[*loop.BreakIf].Kind.(ir.ExprConstant); !ok {
		t.Errorf("break-if expression = %T, want the loop condition constant", fn0.Expressions[*loop.BreakIf].Kind)
	}
}

func TestLowerRejectsInterfaceGlobals(t *testing.T) {
	a := spvasm.New()
	f32 := a.ID()
	ptrIn := a.ID()
	v := a.ID()
	a.Op(spirv.OpTypeFloat, f32, 32)
	a.Op(spirv.OpTypePointer, ptrIn, uint32(spirv.StorageClassInput), f32)
	a.Op(spirv.OpVariable, ptrIn, v, uint32(spirv.StorageClassInput))

	m, err := spirv.Parse(a.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = m.Lower(nil)
	if err == nil || !strings.Contains(err.Error(), "input/output globals are unsupported") {
		t.Errorf("Lower = %v, want interface variable rejection", err)
	}
}

func TestLowerRejectsCombinedImageSamplers(t *testing.T) {
	a := spvasm.New()
	f32 := a.ID()
	img := a.ID()
	combined := a.ID()
	ptr := a.ID()
	v := a.ID()
	a.Op(spirv.OpTypeFloat, f32, 32)
	a.Op(spirv.OpTypeImage, img, f32, uint32(spirv.Dim2D), 0, 0, 0, 1, 0)
	a.Op(spirv.OpTypeSampledImage, combined, img)
	a.Op(spirv.OpTypePointer, ptr, uint32(spirv.StorageClassUniformConstant), combined)
	a.Op(spirv.OpVariable, ptr, v, uint32(spirv.StorageClassUniformConstant))

	m, err := spirv.Parse(a.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = m.Lower(nil)
	if err == nil || !strings.Contains(err.Error(), "combined image-samplers") {
		t.Errorf("Lower = %v, want combined image-sampler rejection", err)
	}
}

func TestLowerBakesSpecOverrides(t *testing.T) {
	a := spvasm.New()
	u32T := a.ID()
	sc := a.ID()
	a.Op(spirv.OpDecorate, sc, uint32(spirv.DecorationSpecID), 0)
	a.Op(spirv.OpTypeInt, u32T, 32, 0)
	a.Op(spirv.OpSpecConstant, u32T, sc, 4)

	m, err := spirv.Parse(a.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := m.SetSpecValue(sc, 7); err != nil {
		t.Fatalf("SetSpecValue: %v", err)
	}
	irmod, err := m.Lower(nil)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if len(irmod.Constants) != 1 {
		t.Fatalf("got %d constants, want 1", len(irmod.Constants))
	}
	v, ok := irmod.Constants[0].Value.(ir.ScalarValue)
	if !ok || v.Bits != 7 {
		t.Errorf("constant value = %+v, want the overridden 7", irmod.Constants[0].Value)
	}
}
