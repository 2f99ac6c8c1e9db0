// Package matte accumulates Cryptomatte ID samples for a progressively
// sampled renderer and produces sorted, coverage-weighted matte passes.
//
// A Session owns one flat slot buffer for one render view. Every render
// sample the caller hands it a hash frame (one float32 ID per pixel and
// active layer, 0 meaning no surface). Each (pixel, layer) keeps a fixed
// number of slots: a matching hash increments its slot, a new hash takes the
// first empty slot, and anything else is dropped. When the view is done,
// Finalize normalizes the counts against the pixel coverage, removes the
// background and sorts the slots by weight. Extract then packs two slots per
// RGBA pass.
//
// Lifecycle:
//
//	INIT --Allocate--> ALLOCATED --Integrate--> ACCUMULATING
//	     --Finalize--> FINALIZED --Extract--> EXTRACTED
//	     --Clear--> ALLOCATED (next view)   --Free--> FREED
//
// Operations outside their state return a *MisuseError.
//
// Example usage:
//
//	s, err := matte.NewSession(matte.Config{
//		Levels:   6,
//		Accurate: true,
//		Layers:   matte.NewLayerSet(matte.LayerObject, matte.LayerMaterial),
//		Prefix:   "ViewLayer.",
//	})
//	if err != nil {
//		return err
//	}
//	s.Allocate(width, height)
//	for sample := range samples {
//		s.Integrate(frames[sample])
//	}
//	s.Finalize(nil)
//	passes, err := s.Extract(matte.LayerObject)
//
// A Session is not safe for concurrent use. Internally Integrate, Finalize
// and Extract split the image into row bands and process them in parallel.
package matte
