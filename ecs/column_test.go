/*
 * Copyright (c) 2026, the modulehost authors. All rights reserved.
 */
package ecs_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/pjanec/modulehost/ecs"
)

type vec2 struct{ X, Y uint64 }

func bytesOf(vs []vec2) []byte {
	buf := make([]byte, 0, len(vs)*16)
	for _, v := range vs {
		var b [16]byte
		binary.LittleEndian.PutUint64(b[0:8], v.X)
		binary.LittleEndian.PutUint64(b[8:16], v.Y)
		buf = append(buf, b[:]...)
	}
	return buf
}

var _ = Describe("Column", func() {
	Describe("chunked writes", func() {
		var col *ecs.Column[vec2]

		BeforeEach(func() {
			col = ecs.NewColumn[vec2](4)
		})

		It("stores a value at its slot and reads it back", func() {
			col.Write(5, vec2{X: 7, Y: 9})
			Expect(*col.Read(5)).To(Equal(vec2{X: 7, Y: 9}))
		})

		It("keeps a chunk's span pointer stable across writes to other chunks", func() {
			col.Write(1, vec2{X: 1})
			span := col.Span(0)
			Expect(span).To(HaveLen(4))
			col.Write(9, vec2{X: 2}) // a different chunk
			Expect(&col.Span(0)[0]).To(BeIdenticalTo(&span[0]))
		})
	})

	Describe("dirty-chunk versioning", func() {
		It("bumps the owning chunk's version on every write, including overwrites", func() {
			repo := ecs.NewEntityRepository(4)
			const compID ecs.ComponentID = 1
			_, err := ecs.RegisterComponent[vec2](repo, compID, ecs.Persistent, 4)
			Expect(err).NotTo(HaveOccurred())
			tbl, err := ecs.GetComponentTable[vec2](repo, compID)
			Expect(err).NotTo(HaveOccurred())

			e := repo.CreateEntity()
			Expect(ecs.SetComponent(repo, e, compID, vec2{X: 1})).To(Succeed())
			v1 := tbl.Version(0)
			Expect(ecs.SetComponent(repo, e, compID, vec2{X: 1})).To(Succeed())
			v2 := tbl.Version(0)
			Expect(v2).To(BeNumerically(">", v1))
		})
	})

	Describe("sync_from idempotence", func() {
		It("reproduces a chunk's bytes exactly, and a second sync at the same version is a no-op", func() {
			srcRepo := ecs.NewEntityRepository(4)
			dstRepo := ecs.NewEntityRepository(4)
			const compID ecs.ComponentID = 1
			_, err := ecs.RegisterComponent[vec2](srcRepo, compID, ecs.Persistent, 4)
			Expect(err).NotTo(HaveOccurred())
			_, err = ecs.RegisterComponent[vec2](dstRepo, compID, ecs.Persistent, 4)
			Expect(err).NotTo(HaveOccurred())

			e := srcRepo.CreateEntity()
			Expect(ecs.SetComponent(srcRepo, e, compID, vec2{X: 11, Y: 22})).To(Succeed())

			dstRepo.SyncFrom(srcRepo, nil)

			srcTbl, err := ecs.GetComponentTable[vec2](srcRepo, compID)
			Expect(err).NotTo(HaveOccurred())
			dstTbl, err := ecs.GetComponentTable[vec2](dstRepo, compID)
			Expect(err).NotTo(HaveOccurred())

			srcSum := ecs.ChecksumBytes(bytesOf(srcTbl.Span(0)))
			dstSum := ecs.ChecksumBytes(bytesOf(dstTbl.Span(0)))
			Expect(dstSum).To(Equal(srcSum))

			v, err := ecs.GetComponentRO[vec2](dstRepo, e, compID)
			Expect(err).NotTo(HaveOccurred())
			Expect(*v).To(Equal(vec2{X: 11, Y: 22}))

			// a second sync at the same source version copies nothing new,
			// so the checksum is unchanged.
			dstRepo.SyncFrom(srcRepo, nil)
			Expect(ecs.ChecksumBytes(bytesOf(dstTbl.Span(0)))).To(Equal(srcSum))
		})

		It("yields the same replica from a soft-cleared recycle as from a fresh one", func() {
			src := ecs.NewEntityRepository(4)
			fresh := ecs.NewEntityRepository(4)
			recycled := ecs.NewEntityRepository(4)
			const compID ecs.ComponentID = 1
			for _, r := range []*ecs.EntityRepository{src, fresh, recycled} {
				_, err := ecs.RegisterComponent[vec2](r, compID, ecs.Persistent, 4)
				Expect(err).NotTo(HaveOccurred())
			}

			e := src.CreateEntity()
			Expect(ecs.SetComponent(src, e, compID, vec2{X: 3, Y: 4})).To(Succeed())

			recycled.SyncFrom(src, nil)
			recycled.SoftClear()
			Expect(ecs.SetComponent(src, e, compID, vec2{X: 5, Y: 6})).To(Succeed())

			recycled.SyncFrom(src, nil)
			fresh.SyncFrom(src, nil)

			freshTbl, err := ecs.GetComponentTable[vec2](fresh, compID)
			Expect(err).NotTo(HaveOccurred())
			recycledTbl, err := ecs.GetComponentTable[vec2](recycled, compID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ecs.ChecksumBytes(bytesOf(recycledTbl.Span(0)))).To(
				Equal(ecs.ChecksumBytes(bytesOf(freshTbl.Span(0)))))

			Expect(recycled.IsAlive(e)).To(BeTrue())
			v, err := ecs.GetComponentRO[vec2](recycled, e, compID)
			Expect(err).NotTo(HaveOccurred())
			Expect(*v).To(Equal(vec2{X: 5, Y: 6}))
		})

		It("restricts sync to the requested component mask", func() {
			srcRepo := ecs.NewEntityRepository(4)
			dstRepo := ecs.NewEntityRepository(4)
			const idA, idB ecs.ComponentID = 1, 2
			_, err := ecs.RegisterComponent[vec2](srcRepo, idA, ecs.Persistent, 4)
			Expect(err).NotTo(HaveOccurred())
			_, err = ecs.RegisterComponent[vec2](srcRepo, idB, ecs.Persistent, 4)
			Expect(err).NotTo(HaveOccurred())
			_, err = ecs.RegisterComponent[vec2](dstRepo, idA, ecs.Persistent, 4)
			Expect(err).NotTo(HaveOccurred())
			_, err = ecs.RegisterComponent[vec2](dstRepo, idB, ecs.Persistent, 4)
			Expect(err).NotTo(HaveOccurred())

			e := srcRepo.CreateEntity()
			Expect(ecs.SetComponent(srcRepo, e, idA, vec2{X: 1})).To(Succeed())
			Expect(ecs.SetComponent(srcRepo, e, idB, vec2{X: 2})).To(Succeed())

			mask := ecs.BitMask256{}.Set(int(idA))
			dstRepo.SyncFrom(srcRepo, &mask)

			va, err := ecs.GetComponentRO[vec2](dstRepo, e, idA)
			Expect(err).NotTo(HaveOccurred())
			Expect(va.X).To(Equal(uint64(1)))

			// idB was never selected: its mask bit is cleared on the
			// replica, so the component reads as absent there.
			Expect(dstRepo.HasComponent(e, idB)).To(BeFalse())
			_, err = ecs.GetComponentRO[vec2](dstRepo, e, idB)
			Expect(err).To(HaveOccurred())
		})
	})
})
