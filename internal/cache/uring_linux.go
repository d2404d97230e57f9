//go:build linux

package cache

import (
	"errors"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// uringQueue is a minimal single-submitter io_uring wrapper covering only
// the read/write-at-offset operations UringBackend needs. It intentionally
// does not attempt to be a general-purpose io_uring library: one ring, one
// in-flight operation at a time, submitted and reaped synchronously. That
// keeps the syscall surface small enough to audit against the kernel ABI
// without pulling in an unvetted binding.
type uringQueue struct {
	mu       sync.Mutex
	fd       int
	sqRing   []byte
	cqRing   []byte
	sqEntries []byte
	params   unixIOUringParams
}

// newUringQueue sets up the ring via io_uring_setup and mmaps the
// submission/completion queues.
func newUringQueue(depth uint32) (*uringQueue, error) {
	var params unixIOUringParams
	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(depth), uintptr(unsafe.Pointer(&params)), 0)
	if errno != 0 {
		return nil, errno
	}

	q := &uringQueue{fd: int(fd), params: params}

	sqSize := params.sqOff.array + params.sqEntries*4
	sqPtr, err := unix.Mmap(int(fd), unix.IORING_OFF_SQ_RING, int(sqSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Close(int(fd))
		return nil, err
	}
	q.sqRing = sqPtr

	cqSize := params.cqOff.cqes + params.cqEntries*uint32(unsafe.Sizeof(unixIOUringCQE{}))
	cqPtr, err := unix.Mmap(int(fd), unix.IORING_OFF_CQ_RING, int(cqSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(q.sqRing)
		unix.Close(int(fd))
		return nil, err
	}
	q.cqRing = cqPtr

	sqeSize := params.sqEntries * uint32(unsafe.Sizeof(unixIOUringSQE{}))
	sqePtr, err := unix.Mmap(int(fd), unix.IORING_OFF_SQES, int(sqeSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(q.sqRing)
		unix.Munmap(q.cqRing)
		unix.Close(int(fd))
		return nil, err
	}
	q.sqEntries = sqePtr

	return q, nil
}

var errQueueClosed = errors.New("cache: io_uring queue closed")

func (q *uringQueue) readAt(fd int, buf []byte, offset int64) error {
	return q.submitOne(unix.IORING_OP_READ, fd, buf, offset)
}

func (q *uringQueue) writeAt(fd int, buf []byte, offset int64) error {
	return q.submitOne(unix.IORING_OP_WRITE, fd, buf, offset)
}

// submitOne prepares a single SQE, submits it via the io_uring_enter
// syscall, and blocks for exactly one completion. Correctness over
// throughput: batching is left for a future iteration if profiling shows
// the syscall-per-entry cost matters relative to disk I/O.
func (q *uringQueue) submitOne(op uint8, fd int, buf []byte, offset int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fd < 0 {
		return errQueueClosed
	}

	sqTail := (*uint32)(unsafe.Pointer(&q.sqRing[q.params.sqOff.tail]))
	sqMask := *(*uint32)(unsafe.Pointer(&q.sqRing[q.params.sqOff.ringMask]))
	idx := *sqTail & sqMask

	sqe := (*unixIOUringSQE)(unsafe.Pointer(&q.sqEntries[idx*uint32(unsafe.Sizeof(unixIOUringSQE{}))]))
	*sqe = unixIOUringSQE{}
	sqe.opcode = op
	sqe.fd = int32(fd)
	sqe.off = uint64(offset)
	sqe.addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	sqe.len = uint32(len(buf))

	arrayBase := (*uint32)(unsafe.Pointer(&q.sqRing[q.params.sqOff.array]))
	arraySlot := (*uint32)(unsafe.Pointer(uintptr(unsafe.Pointer(arrayBase)) + uintptr(idx)*4))
	*arraySlot = idx

	*sqTail++

	_, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(q.fd), 1, 1, unix.IORING_ENTER_GETEVENTS, 0, 0)
	if errno != 0 {
		return errno
	}

	cqHead := (*uint32)(unsafe.Pointer(&q.cqRing[q.params.cqOff.head]))
	cqMask := *(*uint32)(unsafe.Pointer(&q.cqRing[q.params.cqOff.ringMask]))
	cidx := *cqHead & cqMask
	cqe := (*unixIOUringCQE)(unsafe.Pointer(&q.cqRing[q.params.cqOff.cqes+cidx*uint32(unsafe.Sizeof(unixIOUringCQE{}))]))
	res := cqe.res
	*cqHead++

	if res < 0 {
		return unix.Errno(-res)
	}
	return nil
}

func (q *uringQueue) close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fd < 0 {
		return nil
	}
	unix.Munmap(q.sqEntries)
	unix.Munmap(q.cqRing)
	unix.Munmap(q.sqRing)
	err := unix.Close(q.fd)
	q.fd = -1
	return err
}

// The structs below mirror the stable io_uring kernel ABI
// (include/uapi/linux/io_uring.h) at the granularity this package needs.

type unixIOUringSQOffsets struct {
	head, tail, ringMask, ringEntries, flags, dropped, array, resv1 uint32
	resv2                                                           uint64
}

type unixIOUringCQOffsets struct {
	head, tail, ringMask, ringEntries, overflow uint32
	cqes                                        uint32
	flags                                       uint32
	resv1                                       uint32
	resv2                                       uint64
}

type unixIOUringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        unixIOUringSQOffsets
	cqOff        unixIOUringCQOffsets
}

type unixIOUringSQE struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	opcodeFlags uint32
	userData    uint64
	_pad        [3]uint64
}

type unixIOUringCQE struct {
	userData uint64
	res      int32
	flags    uint32
}
