// Package generator produces preview images from text prompts.
//
// StableDiffusion talks to a self-hosted Stable Diffusion HTTP service.
// Placeholder renders a deterministic solid-colour PNG and backs the
// simulated "dalle" and "midjourney" services as well as stable_diffusion
// when no service URL is configured. Router dispatches requests by service
// name.
package generator
