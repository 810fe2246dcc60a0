//go:generate sh -c "echo Generating for $TARGET_GOARCH"
//go:generate sh -c "clang -O2 -g -target bpf -D__TARGET_ARCH_$TARGET_GOARCH -I./bpf/headers -Wno-address-of-packed-member -c ./bpf/nfsd_trace.bpf.c -o ./bpf/nfsd_trace.bpf.o"

// Package nfsdtrace holds the build hooks for the kernel program.
package nfsdtrace
