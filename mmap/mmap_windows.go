package mmap

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

// Views must start at a multiple of the allocation granularity, which is
// 64 KiB on every supported Windows version.
const alignment = 64 * 1024

func mmap(file *os.File, offset int64, size int, opt Options) ([]byte, error) {
	var sizelo, sizehi uint32

	prot := uint32(syscall.PAGE_READONLY)
	access := uint32(syscall.FILE_MAP_READ)

	if opt.Has(Writable) {
		end := offset + int64(size)
		if err := file.Truncate(end); err != nil {
			return nil, fmt.Errorf("truncate: %s", err)
		}
		sizehi = uint32(uint64(end) >> 32)
		sizelo = uint32(uint64(end))
		prot = syscall.PAGE_READWRITE
		access = syscall.FILE_MAP_WRITE
	}

	h, errno := syscall.CreateFileMapping(syscall.Handle(file.Fd()), nil, prot, sizehi, sizelo, nil)
	if h == 0 {
		return nil, os.NewSyscallError("CreateFileMapping", errno)
	}

	offhi := uint32(uint64(offset) >> 32)
	offlo := uint32(uint64(offset))
	addr, errno := syscall.MapViewOfFile(h, access, offhi, offlo, uintptr(size))
	if addr == 0 {
		_ = syscall.CloseHandle(h)
		return nil, os.NewSyscallError("MapViewOfFile", errno)
	}

	if err := syscall.CloseHandle(h); err != nil {
		_ = syscall.UnmapViewOfFile(addr)
		return nil, os.NewSyscallError("CloseHandle", err)
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func munmap(b []byte) error {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	addr -= addr % alignment
	err := syscall.UnmapViewOfFile(addr)
	if err != nil {
		return os.NewSyscallError("UnmapViewOfFile", err)
	}
	return nil
}
