package spirv

import (
	"fmt"

	"github.com/gogpu/naga/ir"
)

// basicBlock is one label-delimited block of a function body.
type basicBlock struct {
	body  []*Instruction
	merge *Instruction // OpSelectionMerge or OpLoopMerge, when present
	term  *Instruction
}

type loopFrame struct {
	merge  uint32
	cont   uint32
	header uint32
}

// contCtx is set while lowering a loop's continuing region, where a
// conditional back edge encodes the break-if expression.
type contCtx struct {
	header  uint32
	merge   uint32
	breakIf **ir.ExpressionHandle
}

type funcLowerer struct {
	l  *lowerer
	fn *ir.Function

	blocks  map[uint32]*basicBlock
	exprMap map[uint32]ir.ExpressionHandle
	typeOf  map[uint32]uint32    // result id -> spirv type id
	sampled map[uint32][2]uint32 // OpSampledImage result -> {image, sampler}
	loops   []loopFrame

	// pending is the index of the first expression not yet covered by an
	// Emit statement; cur is the block such a statement lands in.
	pending int
	cur     *ir.Block

	invertY bool
	retType uint32
}

func (l *lowerer) lowerFunction(body *funcBody) (ir.Function, error) {
	ops := body.inst.Operands
	funcID := ops[1]
	f := &funcLowerer{
		l:       l,
		fn:      &ir.Function{Name: l.m.names[funcID]},
		blocks:  make(map[uint32]*basicBlock),
		exprMap: make(map[uint32]ir.ExpressionHandle),
		typeOf:  make(map[uint32]uint32),
		sampled: make(map[uint32][2]uint32),
		retType: ops[0],
	}
	if !l.voidIDs[f.retType] {
		handle, ok := l.typeMap[f.retType]
		if !ok {
			return ir.Function{}, fmt.Errorf("spirv: function %%%d has unknown return type", funcID)
		}
		f.fn.Result = &ir.FunctionResult{Type: handle}
	}
	for _, ep := range l.m.entryPoints {
		if ep.function == funcID && ep.model == ExecutionModelVertex {
			f.invertY = l.opts.InvertY
		}
	}

	var first uint32
	var cur *basicBlock
	for _, inst := range l.m.Instructions[body.start+1 : body.end] {
		switch inst.Opcode {
		case OpFunctionParameter:
			paramType, ok := l.typeMap[inst.Operands[0]]
			if !ok {
				return ir.Function{}, fmt.Errorf("spirv: parameter %%%d has unknown type", inst.Operands[1])
			}
			index := uint32(len(f.fn.Arguments))
			f.fn.Arguments = append(f.fn.Arguments, ir.FunctionArgument{
				Name: l.m.names[inst.Operands[1]],
				Type: paramType,
			})
			f.typeOf[inst.Operands[1]] = inst.Operands[0]
			f.exprMap[inst.Operands[1]] = f.append(ir.ExprFunctionArgument{Index: index})
			f.pending = len(f.fn.Expressions)
		case OpLabel:
			cur = &basicBlock{}
			f.blocks[inst.Operands[0]] = cur
			if first == 0 {
				first = inst.Operands[0]
			}
		case OpSelectionMerge, OpLoopMerge:
			cur.merge = inst
		case OpBranch, OpBranchConditional, OpSwitch, OpReturn, OpReturnValue,
			OpKill, OpUnreachable:
			cur.term = inst
		default:
			if cur == nil {
				return ir.Function{}, fmt.Errorf("spirv: %v before first label in function %%%d", inst.Opcode, funcID)
			}
			cur.body = append(cur.body, inst)
		}
	}
	if first == 0 {
		return *f.fn, nil // declaration without body
	}

	var root ir.Block
	if err := f.lowerRegion(first, 0, &root, nil); err != nil {
		return ir.Function{}, err
	}
	f.fn.Body = root
	return *f.fn, nil
}

// append adds an expression to the arena without mapping a result id.
func (f *funcLowerer) append(kind ir.ExpressionKind) ir.ExpressionHandle {
	handle := ir.ExpressionHandle(len(f.fn.Expressions))
	f.fn.Expressions = append(f.fn.Expressions, ir.Expression{Kind: kind})
	return handle
}

// emit adds an expression that must be covered by an Emit statement.
func (f *funcLowerer) emit(kind ir.ExpressionKind) ir.ExpressionHandle {
	return f.append(kind)
}

// leaf adds an expression that must stay outside Emit ranges. Any open
// range is flushed first so the leaf is skipped over.
func (f *funcLowerer) leaf(kind ir.ExpressionKind) ir.ExpressionHandle {
	f.flush()
	handle := f.append(kind)
	f.pending = len(f.fn.Expressions)
	return handle
}

// flush closes the open expression range into an Emit statement.
func (f *funcLowerer) flush() {
	if f.pending < len(f.fn.Expressions) {
		*f.cur = append(*f.cur, ir.Statement{Kind: ir.StmtEmit{Range: ir.Range{
			Start: ir.ExpressionHandle(f.pending),
			End:   ir.ExpressionHandle(len(f.fn.Expressions)),
		}}})
		f.pending = len(f.fn.Expressions)
	}
}

func (f *funcLowerer) stmt(kind ir.StatementKind) {
	*f.cur = append(*f.cur, ir.Statement{Kind: kind})
}

// expr resolves a SPIR-V id to its expression handle, materializing
// constant and global references on first use.
func (f *funcLowerer) expr(id uint32) (ir.ExpressionHandle, error) {
	if h, ok := f.exprMap[id]; ok {
		return h, nil
	}
	if c, ok := f.l.constMap[id]; ok {
		h := f.leaf(ir.ExprConstant{Constant: c})
		f.exprMap[id] = h
		return h, nil
	}
	if g, ok := f.l.globalMap[id]; ok {
		h := f.leaf(ir.ExprGlobalVariable{Variable: g})
		f.exprMap[id] = h
		return h, nil
	}
	return 0, fmt.Errorf("spirv: reference to undefined id %%%d", id)
}

func (f *funcLowerer) exprs(ids []uint32) ([]ir.ExpressionHandle, error) {
	out := make([]ir.ExpressionHandle, len(ids))
	for i, id := range ids {
		h, err := f.expr(id)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func (f *funcLowerer) innerLoop() *loopFrame {
	if len(f.loops) == 0 {
		return nil
	}
	return &f.loops[len(f.loops)-1]
}

// lowerRegion lowers the chain of blocks from label cur until it reaches
// stop, appending statements to blk. Structured constructs recurse with
// their merge label as the new stop.
func (f *funcLowerer) lowerRegion(cur, stop uint32, blk *ir.Block, cont *contCtx) error {
	for cur != 0 && cur != stop {
		b, ok := f.blocks[cur]
		if !ok {
			return fmt.Errorf("spirv: branch to undefined label %%%d", cur)
		}
		f.cur = blk
		for _, inst := range b.body {
			if err := f.lowerBodyInst(inst); err != nil {
				return err
			}
		}
		if b.term == nil {
			return fmt.Errorf("spirv: block %%%d has no terminator", cur)
		}

		if b.merge != nil && b.merge.Opcode == OpLoopMerge {
			next, err := f.lowerLoop(cur, b, blk)
			if err != nil {
				return err
			}
			cur = next
			continue
		}

		switch b.term.Opcode {
		case OpBranch:
			target := b.term.Operands[0]
			if target == stop {
				return nil
			}
			if fr := f.innerLoop(); fr != nil {
				if target == fr.cont {
					f.flush()
					f.stmt(ir.StmtContinue{})
					return nil
				}
				if target == fr.merge {
					f.flush()
					f.stmt(ir.StmtBreak{})
					return nil
				}
			}
			cur = target

		case OpBranchConditional:
			condID, accept, reject := b.term.Operands[0], b.term.Operands[1], b.term.Operands[2]
			if b.merge != nil && b.merge.Opcode == OpSelectionMerge {
				merge := b.merge.Operands[0]
				cond, err := f.expr(condID)
				if err != nil {
					return err
				}
				f.flush()
				var acceptBlk, rejectBlk ir.Block
				if err := f.lowerRegion(accept, merge, &acceptBlk, cont); err != nil {
					return err
				}
				if err := f.lowerRegion(reject, merge, &rejectBlk, cont); err != nil {
					return err
				}
				f.cur = blk
				f.stmt(ir.StmtIf{Condition: cond, Accept: acceptBlk, Reject: rejectBlk})
				cur = merge
				continue
			}
			if cont != nil && accept == cont.merge && reject == cont.header {
				cond, err := f.expr(condID)
				if err != nil {
					return err
				}
				f.flush()
				*cont.breakIf = &cond
				return nil
			}
			return fmt.Errorf("spirv: conditional branch in block %%%d has no selection merge", cur)

		case OpReturn:
			f.flush()
			f.stmt(ir.StmtReturn{})
			return nil

		case OpReturnValue:
			value, err := f.expr(b.term.Operands[0])
			if err != nil {
				return err
			}
			if f.invertY && f.isVec4Float(f.retType) {
				value = f.negateY(value)
			}
			f.flush()
			f.stmt(ir.StmtReturn{Value: &value})
			return nil

		case OpKill:
			f.flush()
			f.stmt(ir.StmtKill{})
			return nil

		case OpUnreachable:
			return nil

		default:
			return fmt.Errorf("spirv: unsupported terminator %v in block %%%d", b.term.Opcode, cur)
		}
	}
	return nil
}

// lowerLoop handles a block carrying OpLoopMerge: the block is the loop
// header, its branch target begins the body, and the continuing region
// runs from the continue label back to the header. Returns the label to
// resume at.
func (f *funcLowerer) lowerLoop(header uint32, b *basicBlock, blk *ir.Block) (uint32, error) {
	merge, contLabel := b.merge.Operands[0], b.merge.Operands[1]
	if b.term.Opcode != OpBranch {
		return 0, fmt.Errorf("spirv: loop header %%%d must end in an unconditional branch", header)
	}
	bodyLabel := b.term.Operands[0]
	f.flush()

	f.loops = append(f.loops, loopFrame{merge: merge, cont: contLabel, header: header})
	var bodyBlk ir.Block
	if err := f.lowerRegion(bodyLabel, contLabel, &bodyBlk, nil); err != nil {
		return 0, err
	}
	var contBlk ir.Block
	var breakIf *ir.ExpressionHandle
	cc := &contCtx{header: header, merge: merge, breakIf: &breakIf}
	if err := f.lowerRegion(contLabel, header, &contBlk, cc); err != nil {
		return 0, err
	}
	f.loops = f.loops[:len(f.loops)-1]

	f.cur = blk
	f.stmt(ir.StmtLoop{Body: bodyBlk, Continuing: contBlk, BreakIf: breakIf})
	return merge, nil
}

func (f *funcLowerer) isVec4Float(typeID uint32) bool {
	def := f.l.m.defs[typeID]
	if def == nil || def.Opcode != OpTypeVector || def.Operands[2] != 4 {
		return false
	}
	comp := f.l.m.defs[def.Operands[1]]
	return comp != nil && comp.Opcode == OpTypeFloat
}

// negateY rebuilds a vec4 position with its Y component negated.
func (f *funcLowerer) negateY(value ir.ExpressionHandle) ir.ExpressionHandle {
	x := f.emit(ir.ExprAccessIndex{Base: value, Index: 0})
	y := f.emit(ir.ExprUnary{Op: ir.UnaryNegate, Expr: f.emit(ir.ExprAccessIndex{Base: value, Index: 1})})
	z := f.emit(ir.ExprAccessIndex{Base: value, Index: 2})
	w := f.emit(ir.ExprAccessIndex{Base: value, Index: 3})
	return f.emit(ir.ExprCompose{
		Type:       f.l.typeMap[f.retType],
		Components: []ir.ExpressionHandle{x, y, z, w},
	})
}
