//go:build mpi
// +build mpi

package comm

// This header is almost the same as the one used by
// github.com/marcusthierfelder/mpi with some minor changes as well as a
// changes to the way that compilation is done. I'd import this package like
// normal, but these changes impact the underlying type system and compilation
// instructions, so that's not possible. As such, here is his license:
//
// Copyright (c) 2017 Marcus Thierfelder
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// NOTE: Use
// $ mpicc --showme:compile
// $ mpicc --showme:link
// To figure out CFLAGS and LDFLAGS, respectively

/*
#cgo LDFLAGS: -pthread -L/usr/lib/x86_64-linux-gnu/openmpi/lib -lmpi
#cgo CFLAGS: -std=gnu99 -Wall -I/usr/lib/x86_64-linux-gnu/openmpi/include/openmpi -I/usr/lib/x86_64-linux-gnu/openmpi/include -pthread
#include <mpi.h>
#include <stdlib.h>

MPI_Comm get_MPI_COMM_WORLD() {
    return (MPI_Comm)(MPI_COMM_WORLD);
}

int isend_bytes(void *buf, int n, int dest, int tag, MPI_Request *req) {
    return MPI_Isend(buf, n, MPI_BYTE, dest, tag, MPI_COMM_WORLD, req);
}

int wait_request(MPI_Request *req) {
    return MPI_Wait(req, MPI_STATUS_IGNORE);
}

int probe_count(int src, int tag, int *n) {
    MPI_Status status;
    int err = MPI_Probe(src, tag, MPI_COMM_WORLD, &status);
    if (err != MPI_SUCCESS) return err;
    return MPI_Get_count(&status, MPI_BYTE, n);
}

int recv_bytes(void *buf, int n, int src, int tag) {
    return MPI_Recv(buf, n, MPI_BYTE, src, tag, MPI_COMM_WORLD,
                    MPI_STATUS_IGNORE);
}
*/
import "C"

import (
	"errors"
	"runtime"
	"unsafe"
)

var COMM_WORLD C.MPI_Comm = C.get_MPI_COMM_WORLD()

// MPI is a Comm over MPI_COMM_WORLD. MPI is initialized without thread
// support, so every call must come from the goroutine which called NewMPI.
// That goroutine is locked to its OS thread.
//
// Receives are not posted to MPI until Wait is called, where they become a
// blocking probe followed by a receive. This preserves MPI's ordering
// between a pair of ranks as long as at most one receive for a given source
// and tag is outstanding at a time, which is how the exchange phases use
// it.
type MPI struct {
	rank, size int
}

// NewMPI initializes MPI.
func NewMPI() (*MPI, error) {
	runtime.LockOSThread()
	if err := processError(C.MPI_Init(nil, nil)); err != nil {
		return nil, err
	}

	m := &MPI{}
	n := C.int(-1)
	if err := processError(C.MPI_Comm_rank(COMM_WORLD, &n)); err != nil {
		return nil, err
	}
	m.rank = int(n)
	if err := processError(C.MPI_Comm_size(COMM_WORLD, &n)); err != nil {
		return nil, err
	}
	m.size = int(n)

	return m, nil
}

func (m *MPI) Rank() int { return m.rank }
func (m *MPI) Size() int { return m.size }

func (m *MPI) Isend(data []byte, dest, tag int) Request {
	if err := checkRank(dest, m.size); err != nil {
		return done{nil, err}
	}

	// MPI reads the buffer after Isend returns, so it can't live in Go
	// memory.
	req := &mpiSend{buf: C.CBytes(data)}
	err := C.isend_bytes(req.buf, C.int(len(data)), C.int(dest),
		C.int(tag), &req.req)
	if err := processError(err); err != nil {
		C.free(req.buf)
		return done{nil, err}
	}
	return req
}

func (m *MPI) Irecv(source, tag int) Request {
	if err := checkRank(source, m.size); err != nil {
		return done{nil, err}
	}
	return &mpiRecv{src: source, tag: tag}
}

// Close finalizes MPI.
func (m *MPI) Close() error {
	err := processError(C.MPI_Finalize())
	runtime.UnlockOSThread()
	return err
}

type mpiSend struct {
	buf      unsafe.Pointer
	req      C.MPI_Request
	finished bool
	err      error
}

func (r *mpiSend) Wait() ([]byte, error) {
	if !r.finished {
		r.err = processError(C.wait_request(&r.req))
		C.free(r.buf)
		r.finished = true
	}
	return nil, r.err
}

type mpiRecv struct {
	src, tag int
	finished bool
	data     []byte
	err      error
}

func (r *mpiRecv) Wait() ([]byte, error) {
	if r.finished {
		return r.data, r.err
	}
	r.finished = true

	n := C.int(0)
	err := C.probe_count(C.int(r.src), C.int(r.tag), &n)
	if r.err = processError(err); r.err != nil {
		return nil, r.err
	}

	r.data = make([]byte, int(n))
	var ptr unsafe.Pointer
	if n > 0 {
		ptr = unsafe.Pointer(&r.data[0])
	}
	err = C.recv_bytes(ptr, n, C.int(r.src), C.int(r.tag))
	if r.err = processError(err); r.err != nil {
		r.data = nil
	}
	return r.data, r.err
}

func processError(err C.int) error {
	if err == 0 {
		return nil
	}

	buf := make([]C.char, C.MPI_MAX_ERROR_STRING)
	n := C.int(0)
	C.MPI_Error_string(err, &buf[0], &n)
	return errors.New(C.GoString(&buf[0]))
}
