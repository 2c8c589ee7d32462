package compute

// Entry points of narrowPhaseShader.
const (
	entryClearGrid    = "clear_hash_grid"
	entryPopulateGrid = "populate_hash_grid"
	entryNarrowPhase  = "main"
)

// narrowPhaseBindings is the group 0 layout shared by every entry point.
var narrowPhaseBindings = []BindingType{
	BindingReadOnlyStorage, // 0 chunk_layers
	BindingReadOnlyStorage, // 1 chunk_index
	BindingReadOnlyStorage, // 2 fragment_bits
	BindingReadOnlyStorage, // 3 fragments
	BindingStorage,         // 4 contacts
	BindingStorage,         // 5 contact_count
	BindingStorage,         // 6 hash_grid
	BindingStorage,         // 7 particles
	BindingUniform,         // 8 params
}

// narrowPhaseShader tests every solid fragment cell as a unit cube against
// the resident terrain chunks, and against other fragments' cells through
// a spatial hash grid. Dispatch x covers a fragment's local cells, y the
// fragment index.
const narrowPhaseShader = `
const CHUNK_SIZE: i32 = 32;
const LAYER_TEXELS: u32 = 1024u;
const INDEX_PROBES: u32 = 4u;
const CONTACT_EPSILON: f32 = 0.00001;
const EMPTY_SLOT: i32 = -1;
const EMPTY_LAYER: i32 = -1;

const CONTACT_TERRAIN: u32 = 0u;
const CONTACT_FRAGMENT: u32 = 1u;

struct ChunkEntry {
    x: i32,
    y: i32,
    z: i32,
    layer: i32,
}

struct Fragment {
    position: vec3<f32>,
    pad0: f32,
    rotation: vec4<f32>,
    size: vec3<u32>,
    fragment_index: u32,
    occupancy_offset: u32,
    occupancy_size: u32,
    particle_offset: u32,
    pad1: u32,
}

struct Contact {
    position: vec3<f32>,
    penetration: f32,
    normal: vec3<f32>,
    fragment_index: u32,
    contact_type: u32,
    other_fragment: u32,
    voxel_index: u32,
    other_voxel: u32,
}

struct Particle {
    position: vec3<f32>,
    fragment: u32,
}

struct Params {
    grid_origin: vec3<f32>,
    cell_size: f32,
    fragment_count: u32,
    index_size: u32,
    max_contacts: u32,
    grid_dims: u32,
    grid_capacity: u32,
    grid_slots: u32,
    diameter: f32,
    pad0: u32,
}

@group(0) @binding(0) var<storage, read> chunk_layers: array<u32>;
@group(0) @binding(1) var<storage, read> chunk_index: array<ChunkEntry>;
@group(0) @binding(2) var<storage, read> fragment_bits: array<u32>;
@group(0) @binding(3) var<storage, read> fragments: array<Fragment>;
@group(0) @binding(4) var<storage, read_write> contacts: array<Contact>;
@group(0) @binding(5) var<storage, read_write> contact_count: atomic<u32>;
@group(0) @binding(6) var<storage, read_write> hash_grid: array<atomic<i32>>;
@group(0) @binding(7) var<storage, read_write> particles: array<Particle>;
@group(0) @binding(8) var<uniform> params: Params;

fn rotate(q: vec4<f32>, v: vec3<f32>) -> vec3<f32> {
    let t = 2.0 * cross(q.xyz, v);
    return v + q.w * t + cross(q.xyz, t);
}

fn chunk_hash(c: vec3<i32>) -> u32 {
    var h = bitcast<u32>(c.x);
    h = h * 31u + bitcast<u32>(c.y);
    h = h * 31u + bitcast<u32>(c.z);
    return h % params.index_size;
}

// Returns the layer holding chunk c, or -1 when it is not resident.
fn find_layer(c: vec3<i32>) -> i32 {
    let base = chunk_hash(c);
    for (var k = 0u; k < INDEX_PROBES; k = k + 1u) {
        let e = chunk_index[(base + k) % params.index_size];
        if (e.layer == EMPTY_LAYER) {
            return -1;
        }
        if (e.layer >= 0 && e.x == c.x && e.y == c.y && e.z == c.z) {
            return e.layer;
        }
    }
    return -1;
}

fn terrain_solid(cell: vec3<i32>) -> bool {
    let layer = find_layer(cell >> vec3<u32>(5u));
    if (layer < 0) {
        return false;
    }
    let local = vec3<u32>(cell & vec3<i32>(CHUNK_SIZE - 1));
    let texel = chunk_layers[u32(layer) * LAYER_TEXELS + local.y * 32u + local.x];
    return ((texel >> local.z) & 1u) != 0u;
}

fn fragment_solid(f: Fragment, idx: u32) -> bool {
    let word = fragment_bits[f.occupancy_offset + (idx >> 5u)];
    return ((word >> (idx & 31u)) & 1u) != 0u;
}

fn local_coords(f: Fragment, idx: u32) -> vec3<u32> {
    return vec3<u32>(idx % f.size.x, (idx / f.size.x) % f.size.y, idx / (f.size.x * f.size.y));
}

// World center of a local cell. The fragment box is centered on its origin.
fn cell_world_center(f: Fragment, idx: u32) -> vec3<f32> {
    let local = vec3<f32>(local_coords(f, idx)) + vec3<f32>(0.5) - vec3<f32>(f.size) * 0.5;
    return f.position + rotate(f.rotation, local);
}

fn emit(c: Contact) {
    let slot = atomicAdd(&contact_count, 1u);
    if (slot < params.max_contacts) {
        contacts[slot] = c;
    }
}

fn grid_cell(p: vec3<f32>) -> vec3<i32> {
    return vec3<i32>(floor((p - params.grid_origin) / params.cell_size));
}

// Cells wrap modulo grid_dims so particles outside the window alias rather
// than drop out of the broad phase.
fn grid_base(c: vec3<i32>) -> i32 {
    let d = vec3<i32>(i32(params.grid_dims));
    let w = ((c % d) + d) % d;
    return ((w.z * d.z + w.y) * d.y + w.x) * i32(params.grid_capacity);
}

@compute @workgroup_size(64)
fn clear_hash_grid(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.x >= params.grid_slots) {
        return;
    }
    atomicStore(&hash_grid[gid.x], EMPTY_SLOT);
}

@compute @workgroup_size(64)
fn populate_hash_grid(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.y >= params.fragment_count) {
        return;
    }
    let f = fragments[gid.y];
    let idx = gid.x;
    if (idx >= f.size.x * f.size.y * f.size.z || !fragment_solid(f, idx)) {
        return;
    }

    let center = cell_world_center(f, idx);
    let id = f.particle_offset + idx;
    particles[id] = Particle(center, gid.y);

    let base = grid_base(grid_cell(center));
    for (var s = 0u; s < params.grid_capacity; s = s + 1u) {
        loop {
            let r = atomicCompareExchangeWeak(&hash_grid[base + i32(s)], EMPTY_SLOT, i32(id));
            if (r.exchanged) {
                return;
            }
            // Retry spurious failures; move on only when the slot is taken
            if (r.old_value != EMPTY_SLOT) {
                break;
            }
        }
    }
}

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.y >= params.fragment_count) {
        return;
    }
    let f = fragments[gid.y];
    let idx = gid.x;
    if (idx >= f.size.x * f.size.y * f.size.z || !fragment_solid(f, idx)) {
        return;
    }

    let center = cell_world_center(f, idx);
    let box_min = center - vec3<f32>(0.5);
    let box_max = center + vec3<f32>(0.5);
    let lo = vec3<i32>(floor(box_min));
    let hi = vec3<i32>(ceil(box_max)) - vec3<i32>(1);

    for (var z = lo.z; z <= hi.z; z = z + 1) {
        for (var y = lo.y; y <= hi.y; y = y + 1) {
            for (var x = lo.x; x <= hi.x; x = x + 1) {
                let cell = vec3<i32>(x, y, z);
                if (!terrain_solid(cell)) {
                    continue;
                }
                let cell_min = vec3<f32>(cell);
                let d = center - (cell_min + vec3<f32>(0.5));
                let a = abs(d);
                var normal = vec3<f32>(0.0);
                var pen = 0.0;
                if (a.y >= a.x && a.y >= a.z) {
                    normal.y = select(1.0, -1.0, d.y < 0.0);
                    pen = 1.0 - a.y;
                } else if (a.x >= a.z) {
                    normal.x = select(1.0, -1.0, d.x < 0.0);
                    pen = 1.0 - a.x;
                } else {
                    normal.z = select(1.0, -1.0, d.z < 0.0);
                    pen = 1.0 - a.z;
                }
                if (pen <= CONTACT_EPSILON) {
                    continue;
                }
                let overlap = (max(box_min, cell_min) + min(box_max, cell_min + vec3<f32>(1.0))) * 0.5;
                emit(Contact(overlap, pen, normal, f.fragment_index, CONTACT_TERRAIN, 0u, idx, 0u));
            }
        }
    }

    let home = grid_cell(center);
    for (var dz = -1; dz <= 1; dz = dz + 1) {
        for (var dy = -1; dy <= 1; dy = dy + 1) {
            for (var dx = -1; dx <= 1; dx = dx + 1) {
                let base = grid_base(home + vec3<i32>(dx, dy, dz));
                for (var s = 0u; s < params.grid_capacity; s = s + 1u) {
                    let other = atomicLoad(&hash_grid[base + i32(s)]);
                    if (other == EMPTY_SLOT) {
                        break;
                    }
                    let p = particles[u32(other)];
                    if (p.fragment == gid.y) {
                        continue;
                    }
                    let delta = center - p.position;
                    let dist = length(delta);
                    if (dist >= params.diameter || dist <= CONTACT_EPSILON) {
                        continue;
                    }
                    let o = fragments[p.fragment];
                    emit(Contact((center + p.position) * 0.5, params.diameter - dist, delta / dist,
                        f.fragment_index, CONTACT_FRAGMENT, o.fragment_index, idx, u32(other) - o.particle_offset));
                }
            }
        }
    }
}
`
